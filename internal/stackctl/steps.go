package stackctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/common/fsutil"
	"stackctl/internal/config"
	"stackctl/internal/execx"
	"stackctl/internal/toolchain"
)

// ToolResolver finds the engine and compose tool.
type ToolResolver interface {
	ResolveEngine(ctx context.Context) error
	EnsureDaemon(ctx context.Context) (toolchain.Variant, error)
	ResolveCompose(ctx context.Context) (toolchain.ToolChain, error)
}

// Services starts compose services once the tool chain is known.
type Services interface {
	UseToolChain(tc toolchain.ToolChain)
	Up(ctx context.Context, services ...string) error
}

// Elevator runs a command as root.
type Elevator interface {
	Run(ctx context.Context, name string, args ...string) error
}

type attemptGate interface {
	Await(ctx context.Context, target string, maxAttempts int, delay time.Duration) error
}

type modelGate interface {
	Await(ctx context.Context, required []string, timeout time.Duration, verbose bool) error
}

// Stack holds everything the bring-up steps act on.
type Stack struct {
	Opts Options
	Cfg  config.Stack
	Log  zerolog.Logger

	Runner   execx.Runner
	Elevator Elevator
	Tools    ToolResolver
	Services Services
	Health   attemptGate
	Models   modelGate
	HTTP     attemptGate

	// Uid and Gid own data directories created with elevation.
	Uid, Gid int
	// Writable defaults to fsutil.Writable.
	Writable func(dir string) bool
}

func (s *Stack) writable(dir string) bool {
	if s.Writable != nil {
		return s.Writable(dir)
	}
	return fsutil.Writable(dir)
}

// Steps returns the bring-up sequence in execution order.
func (s *Stack) Steps() []Step {
	return []Step{
		{Name: "sources", Policy: FailFast, Run: s.syncSources},
		{Name: "engine", Policy: FailFast, Run: s.Tools.ResolveEngine},
		{Name: "daemon", Policy: FailFast, Run: s.ensureDaemon},
		{Name: "compose", Policy: FailFast, Run: s.resolveCompose},
		{Name: "env-files", Policy: FailFast, Run: s.ensureEnvFiles},
		{Name: "data-dirs", Policy: FailFast, Run: s.ensureDataDirs},
		{Name: "infra", Policy: FailFast, Run: s.startInfra},
		{Name: "models", Policy: FailFast, Run: s.awaitModels},
		{Name: "apps", Policy: FailFast, Run: s.startApps},
		{Name: "http", Policy: SoftFail, Run: s.checkHTTP},
	}
}

func (s *Stack) syncSources(ctx context.Context) error {
	if !s.Opts.SyncSubmodules {
		return Skip("submodule sync disabled")
	}
	if !fsutil.PathExists(s.Cfg.Resolve(".gitmodules")) {
		return Skip("no .gitmodules")
	}
	git := func(args ...string) error {
		c := execx.Cmd{Path: "git", Args: args, Dir: s.Cfg.Dir}
		s.Log.Debug().Str("cmd", c.Line()).Msg("exec")
		if err := s.Runner.Run(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", c.Line(), err)
		}
		return nil
	}
	if err := git("submodule", "sync", "--recursive"); err != nil {
		return err
	}
	update := []string{"submodule", "update", "--init", "--recursive"}
	if s.Opts.PullLatest {
		update = append(update, "--remote", "--merge")
	}
	return git(update...)
}

func (s *Stack) ensureDaemon(ctx context.Context) error {
	access, err := s.Tools.EnsureDaemon(ctx)
	if err != nil {
		return err
	}
	s.Log.Info().Str("access", access.String()).Msg("container engine reachable")
	return nil
}

func (s *Stack) resolveCompose(ctx context.Context) error {
	tc, err := s.Tools.ResolveCompose(ctx)
	if err != nil {
		return err
	}
	s.Services.UseToolChain(tc)
	s.Log.Info().Str("toolchain", tc.String()).Msg("compose tool resolved")
	return nil
}

func (s *Stack) ensureEnvFiles(ctx context.Context) error {
	for _, ef := range s.Cfg.EnvFiles {
		target, tmpl := s.Cfg.Resolve(ef.Target), s.Cfg.Resolve(ef.Template)
		copied, err := fsutil.CopyIfAbsent(tmpl, target)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s not found and template %s is missing", ErrConfigurationMissing, ef.Target, ef.Template)
		case err != nil:
			return fmt.Errorf("create %s: %w", ef.Target, err)
		case copied:
			s.Log.Info().Str("file", ef.Target).Str("from", ef.Template).Msg("created env file from template")
		default:
			s.Log.Debug().Str("file", ef.Target).Msg("env file present")
		}
	}
	return nil
}

func (s *Stack) ensureDataDirs(ctx context.Context) error {
	for _, d := range s.Cfg.DataDirs {
		p := s.Cfg.Resolve(d)
		existed := fsutil.PathExists(p)
		if err := os.MkdirAll(p, 0o777); err == nil {
			if !existed {
				// umask strips group/other bits; containers write here as other uids.
				_ = os.Chmod(p, 0o777)
			}
			if s.writable(p) {
				continue
			}
		}
		s.Log.Info().Str("dir", p).Msg("data directory not writable, fixing with elevated privileges")
		if err := s.Elevator.Run(ctx, "mkdir", "-p", p); err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
		if err := s.Elevator.Run(ctx, "chown", "-R", fmt.Sprintf("%d:%d", s.Uid, s.Gid), p); err != nil {
			return fmt.Errorf("chown %s: %w", p, err)
		}
		if err := s.Elevator.Run(ctx, "chmod", "-R", "a+rwX", p); err != nil {
			return fmt.Errorf("chmod %s: %w", p, err)
		}
		if !s.writable(p) {
			return fmt.Errorf("%s is still not writable", p)
		}
	}
	return nil
}

func (s *Stack) startInfra(ctx context.Context) error {
	if len(s.Cfg.InfraServices) == 0 {
		return Skip("no infrastructure services configured")
	}
	if err := s.Services.Up(ctx, s.Cfg.InfraServices...); err != nil {
		return fmt.Errorf("start %s: %w", strings.Join(s.Cfg.InfraServices, ", "), err)
	}
	for _, svc := range s.Cfg.InfraServices {
		if err := s.Health.Await(ctx, svc, s.Cfg.HealthAttempts, s.Cfg.HealthDelay()); err != nil {
			return err
		}
		s.Log.Info().Str("service", svc).Msg("healthy")
	}
	return nil
}

// requiredModels prefers the run options over the stack file.
func (s *Stack) requiredModels() []string {
	if s.Opts.RequiredModels != nil {
		return s.Opts.RequiredModels
	}
	return s.Cfg.RequiredModels
}

func (s *Stack) bootstrapTimeout() time.Duration {
	if s.Opts.BootstrapTimeout > 0 {
		return s.Opts.BootstrapTimeout
	}
	return time.Duration(s.Cfg.BootstrapTimeoutSeconds) * time.Second
}

func (s *Stack) awaitModels(ctx context.Context) error {
	if s.Opts.SkipModelWait {
		s.Log.Warn().Msg("not waiting for models; downloads continue in the background")
		return Skip("model wait skipped")
	}
	required := s.requiredModels()
	if len(required) == 0 {
		return Skip("no required models")
	}
	return s.Models.Await(ctx, required, s.bootstrapTimeout(), s.Opts.VerboseBootstrap)
}

func (s *Stack) startApps(ctx context.Context) error {
	if len(s.Cfg.AppServices) == 0 {
		return Skip("no application services configured")
	}
	if err := s.Services.Up(ctx, s.Cfg.AppServices...); err != nil {
		return fmt.Errorf("start %s: %w", strings.Join(s.Cfg.AppServices, ", "), err)
	}
	return nil
}

func (s *Stack) checkHTTP(ctx context.Context) error {
	var errs []error
	for _, hc := range s.Cfg.HTTPChecks {
		if err := s.HTTP.Await(ctx, hc.URL, s.Cfg.HTTPAttempts, s.Cfg.HTTPDelay()); err != nil {
			errs = append(errs, fmt.Errorf("%s not responding: %w", hc.Name, err))
			continue
		}
		s.Log.Info().Str("check", hc.Name).Str("url", hc.URL).Msg("responding")
	}
	return errors.Join(errs...)
}

// Up runs the bring-up sequence and prints the final report to out.
func (s *Stack) Up(ctx context.Context, obs Observer, diag, out io.Writer) (Report, error) {
	seq := &Sequencer{Steps: s.Steps(), Log: s.Log, Observer: obs, Diag: diag}
	rep, err := seq.Run(ctx)
	if err != nil {
		return rep, err
	}
	writeReport(out, rep, s.Cfg.EntryURL)
	s.Log.Info().Int("warnings", len(rep.Warnings)).Msg("setup complete")
	return rep, nil
}

func writeReport(w io.Writer, rep Report, entryURL string) {
	fmt.Fprintln(w, "Setup complete.")
	if len(rep.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, msg := range rep.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
	if entryURL != "" {
		fmt.Fprintf(w, "Open %s\n", entryURL)
	}
}
