package diffusers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logTailBytes = 4096
	stopGrace    = 5 * time.Second
)

// process is a running worker.
type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	logPath string
	logw    *lumberjack.Logger
	baseURL string
}

// findFreePort returns preferred if it can be bound on localhost, else any
// free port.
func findFreePort(preferred int) (int, error) {
	if preferred > 0 {
		if l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(preferred)); err == nil {
			_ = l.Close()
			return preferred, nil
		}
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// startProcess launches the worker. Its output goes to a rotated log file.
func startProcess(e env, port int, log zerolog.Logger) (*process, error) {
	p := &process{
		done:    make(chan struct{}),
		logPath: filepath.Join(e.dir, "worker.log"),
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
	}
	p.logw = &lumberjack.Logger{Filename: p.logPath, MaxSize: 20, MaxBackups: 3}
	cmd := exec.Command(e.python, e.script, "--host", "127.0.0.1", "--port", strconv.Itoa(port))
	cmd.Dir = e.dir
	cmd.Stdout = p.logw
	cmd.Stderr = p.logw
	// Orphaned grandchildren must not keep Wait blocked on the output pipe.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		_ = p.logw.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	p.cmd = cmd
	log.Info().Int("pid", cmd.Process.Pid).Str("url", p.baseURL).Str("log", p.logPath).Msg("worker started")
	go func() {
		err := cmd.Wait()
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				// It was simply killed.
				err = nil
			}
		}
		p.waitErr = err
		_ = p.logw.Close()
		close(p.done)
	}()
	return p, nil
}

// exited reports whether the process is gone, and its wait error.
func (p *process) exited() (bool, error) {
	select {
	case <-p.done:
		return true, p.waitErr
	default:
		return false, nil
	}
}

// stop sends SIGTERM and kills the process after a grace period.
func (p *process) stop() error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if done, err := p.exited(); done {
		return err
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	return p.waitErr
}

// tail returns the last bytes of the worker log.
func (p *process) tail() string {
	f, err := os.Open(p.logPath)
	if err != nil {
		return ""
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil && fi.Size() > logTailBytes {
		_, _ = f.Seek(-logTailBytes, io.SeekEnd)
	}
	b, _ := io.ReadAll(f)
	return string(b)
}

// waitHealthy polls /health until the worker reports ok, the process exits,
// or timeout elapses.
func (p *process) waitHealthy(ctx context.Context, c *client, timeout time.Duration, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		hctx, hcancel := context.WithTimeout(ctx, time.Second)
		h, err := c.health(hctx)
		hcancel()
		if err == nil && h.Status == "ok" {
			log.Info().Str("url", p.baseURL).Msg("worker ready")
			return nil
		}
		select {
		case <-p.done:
			return fmt.Errorf("worker exited before ready: %v; log tail: %s", p.waitErr, p.tail())
		case <-ctx.Done():
			return fmt.Errorf("worker not ready after %s: %w", timeout, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}
