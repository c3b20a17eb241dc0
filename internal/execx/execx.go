// Package execx runs external commands for the orchestrator. Every
// component that shells out goes through a Runner so tests can script the
// container engine, compose tool and privilege helper.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes a single command invocation.
type Cmd struct {
	Path   string
	Args   []string
	Env    map[string]string // additional env vars
	Dir    string            // working directory
	Stdin  io.Reader         // nil means no input
	Stdout io.Writer         // nil means os.Stdout for Run
	Stderr io.Writer         // nil means os.Stderr for Run
}

// Line renders the command the way a user would type it.
func (c Cmd) Line() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Runner executes commands.
type Runner interface {
	// Run executes c with output attached to c.Stdout/c.Stderr.
	Run(ctx context.Context, c Cmd) error
	// Output executes c and returns its stdout. Stderr is folded into the
	// returned error on failure.
	Output(ctx context.Context, c Cmd) ([]byte, error)
	// LookPath reports where name resolves on PATH.
	LookPath(name string) (string, error)
}

// OS is the Runner backed by os/exec.
type OS struct{}

func (OS) command(ctx context.Context, c Cmd) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	// inherit environment
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = c.Stdin
	return cmd
}

func (r OS) Run(ctx context.Context, c Cmd) error {
	cmd := r.command(ctx, c)
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.Line(), err)
	}
	return nil
}

func (r OS) Output(ctx context.Context, c Cmd) ([]byte, error) {
	cmd := r.command(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", c.Line(), err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", c.Line(), err)
	}
	return stdout.Bytes(), nil
}

func (OS) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Quiet runs c discarding all output and reports only whether it succeeded.
func Quiet(ctx context.Context, r Runner, c Cmd) bool {
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return r.Run(ctx, c) == nil
}
