package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logging with levels
type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

var (
	currentLevel = levelInfo
	stdout       io.Writer = os.Stdout
	stderr       io.Writer = os.Stderr
)

func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = levelDebug
	case "info":
		currentLevel = levelInfo
	case "warn", "warning":
		currentLevel = levelWarn
	case "error", "err":
		currentLevel = levelError
	default:
		currentLevel = levelInfo
	}
}

var (
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New(color.FgCyan)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	okColor    = color.New(color.FgGreen, color.Bold)
	headColor  = color.New(color.Bold)
)

func logf(c *color.Color, w io.Writer, min logLevel, format string, a ...any) {
	if currentLevel > min {
		return
	}
	c.Fprintf(w, format+"\n", a...)
}

func debug(format string, a ...any) { logf(debugColor, stderr, levelDebug, format, a...) }
func info(format string, a ...any)  { logf(infoColor, stdout, levelInfo, format, a...) }
func warn(format string, a ...any)  { logf(warnColor, stderr, levelWarn, format, a...) }
func errl(format string, a ...any)  { logf(errColor, stderr, levelError, format, a...) }
func ok(format string, a ...any)    { logf(okColor, stdout, levelError, format, a...) }

// heading prints a section title regardless of level.
func heading(format string, a ...any) {
	headColor.Fprintf(stdout, "\n--- "+format+" ---\n", a...)
}

// Env helpers
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printf(format string, a ...any) { fmt.Fprintf(stdout, format, a...) }
