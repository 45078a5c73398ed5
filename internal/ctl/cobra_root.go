package ctl

import (
	"context"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Config holds the persistent flags.
type Config struct {
	URL     string
	LogLvl  string
	NoColor bool
	Timeout time.Duration
}

func defaultConfig() *Config {
	return &Config{
		URL:     envStr("IMAGED_URL", "http://127.0.0.1:8888"),
		LogLvl:  envStr("IMAGECTL_LOG_LEVEL", "info"),
		Timeout: 10 * time.Minute,
	}
}

// buildRootCmdWith constructs the command tree.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "imagectl",
		Short:         "Talk to and verify an imaged server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.URL, "url", cfg.URL, "Base URL of the server (defaults IMAGED_URL or http://127.0.0.1:8888)")
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall command timeout")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		SetLogLevel(cfg.LogLvl)
		if cfg.NoColor {
			color.NoColor = true
		}
	}
	client := func() *Client { return &Client{BaseURL: cfg.URL} }
	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), cfg.Timeout)
	}

	models := &cobra.Command{Use: "models", Short: "List installed models", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		list, err := client().Models(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			warn("No models found. Is the server running with models in its models directory?")
		}
		for _, m := range list {
			printf("%s\n", m)
		}
		return nil
	}}

	loras := &cobra.Command{Use: "loras", Short: "List installed LoRA adapters", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		list, err := client().LoRAs(ctx)
		if err != nil {
			return err
		}
		for _, l := range list {
			printf("%s\n", l)
		}
		return nil
	}}

	gopts := DefaultGenerateOptions()
	generate := &cobra.Command{
		Use:     "generate",
		Short:   "Generate an image through the API and save it",
		Example: "  imagectl generate --model Disty0/Z-Image-Turbo-SDNQ-int8 --prompt 'a red fox' -o fox.png\n  imagectl generate   # pick a model interactively",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			opts := gopts
			opts.Interactive = fnIsTerminal()
			_, err := fnRunGenerate(ctx, client(), opts, os.Stdin)
			return err
		},
	}
	gf := generate.Flags()
	gf.StringVar(&gopts.Model, "model", "", "Model repository id")
	gf.StringVar(&gopts.LoRA, "lora", gopts.LoRA, "LoRA file name or None")
	gf.Float64Var(&gopts.LoRAScale, "lora-scale", gopts.LoRAScale, "LoRA strength")
	gf.StringVar(&gopts.Prompt, "prompt", "", "Prompt; the family default when empty")
	gf.StringVar(&gopts.NegativePrompt, "negative-prompt", "", "Negative prompt (sd only)")
	gf.IntVar(&gopts.Steps, "steps", gopts.Steps, "Denoising steps")
	gf.Float64Var(&gopts.GuidanceScale, "guidance-scale", gopts.GuidanceScale, "Guidance scale (ignored by flux)")
	gf.IntVar(&gopts.Width, "width", gopts.Width, "Image width")
	gf.IntVar(&gopts.Height, "height", gopts.Height, "Image height")
	gf.Int64Var(&gopts.Seed, "seed", gopts.Seed, "Seed; -1 for random")
	gf.StringVarP(&gopts.Output, "output", "o", "", "Output file; output_<model>_<lora>.png when empty")

	vopts := DefaultVerifyOptions()
	verify := &cobra.Command{
		Use:     "verify [model...]",
		Short:   "Load each model in-process and generate a small test image",
		Example: "  imagectl verify\n  imagectl verify --backend preview a/flux b/sd",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := vopts
			if opts.LogLevel == "" {
				opts.LogLevel = cfg.LogLvl
			}
			return fnRunVerify(cmd.Context(), opts, args)
		},
	}
	vf := verify.Flags()
	vf.StringVar(&vopts.Backend, "backend", vopts.Backend, "diffusers or preview")
	vf.StringVar(&vopts.ModelsDir, "models-dir", vopts.ModelsDir, "Hugging Face cache directory")
	vf.StringVar(&vopts.CacheDir, "cache-dir", vopts.CacheDir, "Directory for the python environment")
	vf.StringVar(&vopts.Python, "python", "", "Python interpreter instead of a managed virtualenv")
	vf.StringVar(&vopts.OutDir, "out-dir", vopts.OutDir, "Where verify_<n>.png files are written")
	vf.StringVar(&vopts.Prompt, "prompt", vopts.Prompt, "Prompt")
	vf.IntVar(&vopts.Steps, "steps", vopts.Steps, "Denoising steps")
	vf.IntVar(&vopts.Size, "size", vopts.Size, "Width and height")

	shutdown := &cobra.Command{Use: "shutdown", Short: "Ask the server to shut down", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		msg, err := client().Shutdown(ctx)
		if err != nil {
			return err
		}
		info("%s", msg)
		return nil
	}}

	var waitFor time.Duration
	wait := &cobra.Command{Use: "wait", Short: "Wait until the server reports ready", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), waitFor)
		defer cancel()
		if err := client().WaitReady(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		ok("%s is ready", cfg.URL)
		return nil
	}}
	wait.Flags().DurationVar(&waitFor, "for", time.Minute, "How long to wait")

	root.AddCommand(models, loras, generate, verify, shutdown, wait)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(stdout, true) }})
	root.AddCommand(completionCmd)
	return root
}

// MainWithArgs runs imagectl and returns the process exit code: 2 without
// arguments, 1 on failure.
func MainWithArgs(args []string) int {
	root := buildRootCmdWith(defaultConfig())
	root.SetOut(stdout)
	root.SetErr(stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		errl("%v", err)
		return 1
	}
	return 0
}

func stdinIsTerminal() bool { return isTerminal(os.Stdin.Fd()) }
