package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"stackctl/internal/execx"
)

// Elevator runs commands with elevated identity when the current user lacks
// permission. It is used synchronously and never concurrently with itself.
type Elevator struct {
	Runner execx.Runner
	// Euid returns the effective user id; defaults to unix.Geteuid.
	Euid func() int
	// Stdin feeds an interactive sudo password prompt; defaults to os.Stdin.
	Stdin io.Reader
}

func (e Elevator) euid() int {
	if e.Euid != nil {
		return e.Euid()
	}
	return unix.Geteuid()
}

// IsRoot reports whether the process already runs as root.
func (e Elevator) IsRoot() bool { return e.euid() == 0 }

// HasSudo reports whether sudo is on PATH.
func (e Elevator) HasSudo() bool {
	_, err := e.Runner.LookPath(sudoBin)
	return err == nil
}

// Run executes name with args as root. Already-root runs directly; otherwise
// non-interactive sudo is tried first and interactive sudo second.
func (e Elevator) Run(ctx context.Context, name string, args ...string) error {
	if e.IsRoot() {
		return e.Runner.Run(ctx, execx.Cmd{Path: name, Args: args})
	}
	if !e.HasSudo() {
		return fmt.Errorf("%w: need root to run %s and sudo is not installed", ErrPrivilegeUnavailable, name)
	}
	if execx.Quiet(ctx, e.Runner, wrap(Elevated, name, args, true)) {
		return nil
	}
	stdin := e.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	c := wrap(Elevated, name, args, false)
	c.Stdin = stdin
	return e.Runner.Run(ctx, c)
}
