package mcp

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/effective-security/xlog"
)

// DefaultShutdownGrace is how long a provider has to exit after its
// stdin is closed before it is killed.
const DefaultShutdownGrace = 3 * time.Second

// Command describes how to start a provider process.
type Command struct {
	// Name identifies the provider in logs and errors.
	Name string
	// Path is the executable, resolved with PATH.
	Path string
	Args []string
	// Env is added to the agent environment.
	Env map[string]string
	// Stderr receives the provider stderr, os.Stderr when nil.
	Stderr io.Writer
	// ShutdownGrace overrides DefaultShutdownGrace.
	ShutdownGrace time.Duration
}

// Launch starts the provider process and performs the handshake.
// On any failure the process is stopped before returning, so a client
// is either fully initialized or not created at all.
func Launch(ctx context.Context, c *Command) (*Client, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "stdin pipe for %s", c.Name)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "stdout pipe for %s", c.Name)
	}

	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s: %s", c.Name, c.Path)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "started",
		"server", c.Name,
		"command", c.Path,
		"args", c.Args,
		"pid", cmd.Process.Pid,
	)

	proc := &process{
		name:  c.Name,
		cmd:   cmd,
		stdin: stdin,
		grace: c.ShutdownGrace,
	}
	if proc.grace <= 0 {
		proc.grace = DefaultShutdownGrace
	}

	client, err := NewClient(c.Name, stdio.New(stdout, stdin, proc))
	if err != nil {
		_ = proc.Close()
		return nil, err
	}

	if _, err = client.Initialize(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// process stops the provider: stdin is closed so the provider sees EOF,
// then it is killed if it has not exited within the grace period.
type process struct {
	name  string
	cmd   *exec.Cmd
	stdin io.Closer
	grace time.Duration

	once sync.Once
	err  error
}

func (p *process) Close() error {
	p.once.Do(func() {
		_ = p.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			p.err = exitError(err)
		case <-time.After(p.grace):
			logger.KV(xlog.WARNING,
				"status", "killing",
				"server", p.name,
				"pid", p.cmd.Process.Pid,
			)
			_ = p.cmd.Process.Kill()
			<-done
		}

		logger.KV(xlog.DEBUG, "status", "stopped", "server", p.name)
	})
	return p.err
}

// exitError ignores the non-zero exit status of a provider that was asked to stop.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return errors.Wrap(err, "failed to wait for provider")
}
