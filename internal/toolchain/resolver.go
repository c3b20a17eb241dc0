// Package toolchain discovers how to invoke the container engine and the
// compose tool on this host, installing them on demand, and runs commands
// with elevated privileges when needed.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/execx"
	"stackctl/internal/poll"
)

func cmd(name string, args ...string) execx.Cmd { return execx.Cmd{Path: name, Args: args} }

// Resolver probes command variants in priority order and caches the first
// that works. It is used from the sequencer only and is not safe for
// concurrent use.
type Resolver struct {
	Runner    execx.Runner
	Elevator  Elevator
	Prompter  Prompter
	Installer Installer
	Poller    poll.Poller
	Log       zerolog.Logger

	// GOOS defaults to runtime.GOOS.
	GOOS string
	// DaemonAttempts and DaemonDelay bound the wait for the engine daemon.
	DaemonAttempts int
	DaemonDelay    time.Duration

	engine   Variant
	resolved *ToolChain
}

func (r *Resolver) goos() string {
	if r.GOOS != "" {
		return r.GOOS
	}
	return runtime.GOOS
}

// ResolveEngine ensures the engine CLI is on PATH, installing it when the
// operator approves.
func (r *Resolver) ResolveEngine(ctx context.Context) error {
	if _, err := r.Runner.LookPath(engineBin); err == nil {
		return nil
	}
	r.Log.Warn().Str("bin", engineBin).Msg("container engine CLI not found")
	if err := r.install(ctx, ToolEngine); err != nil {
		return err
	}
	if _, err := r.Runner.LookPath(engineBin); err != nil {
		return fmt.Errorf("%w: %s still not on PATH after install", ErrToolingUnavailable, engineBin)
	}
	return nil
}

// probeEngine reports which access variant reaches the daemon.
func (r *Resolver) probeEngine(ctx context.Context) (Variant, bool) {
	if execx.Quiet(ctx, r.Runner, wrap(Direct, engineBin, []string{"info"}, true)) {
		return Direct, true
	}
	if !r.Elevator.IsRoot() && r.Elevator.HasSudo() &&
		execx.Quiet(ctx, r.Runner, wrap(Elevated, engineBin, []string{"info"}, true)) {
		return Elevated, true
	}
	return Direct, false
}

// EnsureDaemon makes sure the engine daemon answers, starting it when the
// platform allows, and records whether engine calls need elevation.
func (r *Resolver) EnsureDaemon(ctx context.Context) (Variant, error) {
	if v, ok := r.probeEngine(ctx); ok {
		r.engine = v
		return v, nil
	}
	r.Log.Info().Msg("container engine daemon not reachable, starting it")
	switch r.goos() {
	case "linux":
		if err := r.Elevator.Run(ctx, "systemctl", "start", "docker"); err != nil {
			if errors.Is(err, ErrPrivilegeUnavailable) {
				return Direct, err
			}
			r.Log.Warn().Err(err).Msg("systemctl start docker failed")
		}
	case "darwin":
		if err := r.Runner.Run(ctx, cmd("open", "-a", "Docker")); err != nil {
			r.Log.Warn().Err(err).Msg("could not launch Docker Desktop")
		}
	default:
		return Direct, fmt.Errorf("%w: cannot start the docker daemon on %s", ErrToolingUnavailable, r.goos())
	}
	attempts, delay := r.DaemonAttempts, r.DaemonDelay
	if attempts <= 0 {
		attempts = 30
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	var found Variant
	_, err := r.Poller.Until(ctx, attempts, delay, func(ctx context.Context, attempt int) (bool, error) {
		v, ok := r.probeEngine(ctx)
		if ok {
			found = v
		} else {
			r.Log.Debug().Int("attempt", attempt).Msg("waiting for docker daemon")
		}
		return ok, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return Direct, fmt.Errorf("%w: docker daemon did not become reachable after %d attempts", ErrToolingUnavailable, attempts)
		}
		return Direct, err
	}
	r.engine = found
	return found, nil
}

type candidate struct{ form, access Variant }

// candidates lists compose variants in probe order. A version probe never
// touches the daemon, so when the daemon needs sudo only elevated variants
// qualify.
func (r *Resolver) candidates() []candidate {
	direct := []candidate{{Plugin, Direct}, {Standalone, Direct}}
	elevated := []candidate{{Plugin, Elevated}, {Standalone, Elevated}}
	canElevate := !r.Elevator.IsRoot() && r.Elevator.HasSudo()
	switch {
	case r.engine == Elevated && canElevate:
		return elevated
	case canElevate:
		return append(direct, elevated...)
	default:
		return direct
	}
}

func (r *Resolver) probeCompose(ctx context.Context) (ToolChain, bool) {
	for _, c := range r.candidates() {
		tc := ToolChain{Engine: r.engine, Compose: c.form, ComposeAccess: c.access}
		probe := tc.ComposeCmd("version")
		if c.access == Elevated {
			probe.Args = append([]string{"-n"}, probe.Args...)
		}
		if execx.Quiet(ctx, r.Runner, probe) {
			return tc, true
		}
		r.Log.Debug().Str("candidate", probe.Line()).Msg("compose probe failed")
	}
	return ToolChain{}, false
}

// ResolveCompose returns the first working compose variant, installing the
// tool once when none works. The result is cached.
func (r *Resolver) ResolveCompose(ctx context.Context) (ToolChain, error) {
	if r.resolved != nil {
		return *r.resolved, nil
	}
	tc, ok := r.probeCompose(ctx)
	if !ok {
		r.Log.Warn().Msg("no working compose tool found")
		if err := r.install(ctx, ToolCompose); err != nil {
			return ToolChain{}, err
		}
		if tc, ok = r.probeCompose(ctx); !ok {
			return ToolChain{}, fmt.Errorf("%w: compose still unusable after install", ErrToolingUnavailable)
		}
	}
	r.resolved = &tc
	r.Log.Info().Str("toolchain", tc.String()).Msg("compose resolved")
	return tc, nil
}

func (r *Resolver) install(ctx context.Context, tool Tool) error {
	if err := r.Prompter.Confirm(fmt.Sprintf("Install the %s now?", tool)); err != nil {
		return fmt.Errorf("%w: %w", ErrToolingUnavailable, err)
	}
	if err := r.Installer.Install(ctx, tool); err != nil {
		if errors.Is(err, ErrToolingUnavailable) || errors.Is(err, ErrPrivilegeUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrToolingUnavailable, err)
	}
	return nil
}
