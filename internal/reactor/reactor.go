// Package reactor manages the backend compiler-serving process the dev proxy
// forwards compile and API requests to.
package reactor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

// Command template placeholders.
const (
	PlaceholderHost = "{host}"
	PlaceholderPort = "{port}"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	stopGrace           = 5 * time.Second
)

// Config configures the reactor process.
type Config struct {
	// Command is a whitespace-separated template with {host} and {port}.
	Command string
	Host    string
	Port    int
	// Dir is the working directory of the process.
	Dir          string
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       logging.Logger
}

// Process is one spawned reactor.
type Process struct {
	cfg    Config
	logger logging.Logger

	mutex   sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// New creates a reactor that is not yet running.
func New(cfg Config) *Process {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &Process{cfg: cfg, logger: cfg.Logger.WithComponent("reactor")}
}

// Addr returns the host:port the reactor serves on.
func (p *Process) Addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

// Done is closed when the process exits. It is nil before Start.
func (p *Process) Done() <-chan struct{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.done
}

// Start spawns the reactor and waits until its port accepts connections.
// The process is stopped again if it does not become reachable in time.
func (p *Process) Start(ctx context.Context) error {
	argv := build.ExpandCommand(p.cfg.Command, map[string]string{
		PlaceholderHost: p.cfg.Host,
		PlaceholderPort: strconv.Itoa(p.cfg.Port),
	})
	if len(argv) == 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "reactor command is empty")
	}

	p.mutex.Lock()
	if p.cmd != nil {
		p.mutex.Unlock()
		return fmt.Errorf("reactor already started")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = p.cfg.Dir
	output := &lineWriter{logger: p.logger, ctx: ctx}
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		p.mutex.Unlock()
		return errors.NewIOError(errors.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to start reactor %q", argv[0]), err)
	}
	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.mutex.Unlock()

	go func() {
		err := cmd.Wait()
		p.mutex.Lock()
		p.waitErr = err
		p.mutex.Unlock()
		close(done)
	}()

	p.logger.Info(ctx, "Starting reactor", "command", argv[0], "addr", p.Addr(), "pid", cmd.Process.Pid)

	if err := p.awaitReady(ctx, done); err != nil {
		_ = p.Stop()
		return err
	}

	p.logger.Info(ctx, "Reactor ready", "addr", p.Addr())

	return nil
}

func (p *Process) awaitReady(ctx context.Context, done <-chan struct{}) error {
	deadline := time.NewTimer(p.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if conn, err := net.DialTimeout("tcp", p.Addr(), p.cfg.PollInterval); err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for reactor: %w", ctx.Err())
		case <-done:
			p.mutex.Lock()
			waitErr := p.waitErr
			p.mutex.Unlock()
			return errors.NewIOError(errors.ErrCodeBackendUnavailable,
				"reactor exited before accepting connections", waitErr)
		case <-deadline.C:
			return errors.NewIOError(errors.ErrCodeBackendUnavailable,
				fmt.Sprintf("reactor not reachable on %s after %s", p.Addr(), p.cfg.Timeout), nil)
		case <-ticker.C:
		}
	}
}

// Stop interrupts the reactor and kills it if it has not exited after a
// grace period. Stopping a reactor that was never started is a no-op.
func (p *Process) Stop() error {
	p.mutex.Lock()
	cmd, done := p.cmd, p.done
	p.mutex.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(stopGrace):
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill reactor: %w", err)
		}
		<-done
	}

	return nil
}

// lineWriter forwards process output to the logger line by line.
type lineWriter struct {
	logger logging.Logger
	ctx    context.Context
	mutex  sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(w.buf[:i], "\r"); len(line) > 0 {
			w.logger.Debug(w.ctx, string(line))
		}
		w.buf = w.buf[i+1:]
	}

	return len(b), nil
}
