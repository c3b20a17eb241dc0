package stackctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/compose"
	"stackctl/internal/config"
	"stackctl/internal/execx"
	"stackctl/internal/gate"
	"stackctl/internal/statusapi"
	"stackctl/internal/toolchain"
)

// Indirection layer to allow stubbing in tests
var (
	fnUp     = runUp
	fnDown   = runDown
	fnStatus = runStatus
	fnLogs   = runLogs
	fnModels = runModels
)

// runEnv is the process surroundings a command runs in.
type runEnv struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Log    zerolog.Logger
	RunID  string
}

// app holds the collaborators built for one invocation.
type app struct {
	cfg     config.Stack
	log     zerolog.Logger
	tools   *toolchain.Resolver
	compose *compose.Client
	health  gate.HealthGate
	http    gate.HTTPGate
	models  compose.ModelServer
	stack   *Stack
}

func newApp(opts Options, env runEnv) (*app, error) {
	cfg, err := config.LoadOrDefault(opts.ConfigPath, opts.Dir)
	if err != nil {
		return nil, err
	}
	log := env.Log
	runner := execx.OS{}
	elev := toolchain.Elevator{Runner: runner, Stdin: env.Stdin}
	tools := &toolchain.Resolver{
		Runner:         runner,
		Elevator:       elev,
		Prompter:       toolchain.Prompter{AutoApprove: opts.AutoApprove, In: env.Stdin, Out: env.Stderr},
		Installer:      toolchain.Installer{Elevator: elev, Log: log},
		Log:            log,
		DaemonAttempts: cfg.DaemonAttempts,
		DaemonDelay:    cfg.DaemonDelay(),
	}
	cc := &compose.Client{Runner: runner, Dir: cfg.Dir, Files: cfg.ComposeFiles, Project: cfg.Project}
	models := compose.ModelServer{Client: cc, Service: cfg.ModelService}
	a := &app{
		cfg:     cfg,
		log:     log,
		tools:   tools,
		compose: cc,
		health:  gate.HealthGate{Inspector: cc, Log: log, LogTail: cfg.LogTail},
		http:    gate.HTTPGate{Log: log},
		models:  models,
	}
	a.stack = &Stack{
		Opts:     opts,
		Cfg:      cfg,
		Log:      log,
		Runner:   runner,
		Elevator: elev,
		Tools:    tools,
		Services: cc,
		Health:   a.health,
		Models: gate.BootstrapGate{
			Models:   models,
			Follower: cc,
			Logs:     cc,
			Service:  cfg.ModelService,
			Out:      env.Stderr,
			LogTail:  cfg.LogTail,
			Log:      log,
		},
		HTTP: a.http,
		Uid:  os.Getuid(),
		Gid:  os.Getgid(),
	}
	return a, nil
}

// resolveTools finds the engine and compose tool for the commands that only
// talk to an existing project.
func (a *app) resolveTools(ctx context.Context) error {
	if err := a.tools.ResolveEngine(ctx); err != nil {
		return err
	}
	if _, err := a.tools.EnsureDaemon(ctx); err != nil {
		return err
	}
	tc, err := a.tools.ResolveCompose(ctx)
	if err != nil {
		return err
	}
	a.compose.UseToolChain(tc)
	return nil
}

func runUp(ctx context.Context, opts Options, env runEnv) error {
	a, err := newApp(opts, env)
	if err != nil {
		return err
	}
	tracker := statusapi.NewTracker(env.RunID)
	if opts.StatusAddr != "" {
		srv, err := statusapi.Start(opts.StatusAddr, tracker, env.Log)
		if err != nil {
			return fmt.Errorf("status endpoint: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}
	_, err = a.stack.Up(ctx, tracker, env.Stderr, env.Stdout)
	tracker.Finish(err)
	return err
}

func runDown(ctx context.Context, opts Options, env runEnv) error {
	a, err := newApp(opts, env)
	if err != nil {
		return err
	}
	if err := a.resolveTools(ctx); err != nil {
		return err
	}
	if err := a.compose.Down(ctx); err != nil {
		return fmt.Errorf("compose down: %w", err)
	}
	env.Log.Info().Msg("stack stopped; data volumes kept")
	return nil
}

func runStatus(ctx context.Context, opts Options, env runEnv) error {
	a, err := newApp(opts, env)
	if err != nil {
		return err
	}
	if err := a.resolveTools(ctx); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tHEALTH\tCONTAINER")
	services := append(append([]string(nil), a.cfg.InfraServices...), a.cfg.AppServices...)
	for _, svc := range services {
		obs := a.health.Probe(ctx, svc)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", svc, obs.State, dash(obs.Health), dash(shortID(obs.ID)))
	}
	if len(a.cfg.HTTPChecks) > 0 {
		fmt.Fprintln(tw, "\t\t\t")
		fmt.Fprintln(tw, "CHECK\tURL\tRESULT\t")
		for _, hc := range a.cfg.HTTPChecks {
			result := "down"
			if ok, _ := a.http.Check(ctx, hc.URL); ok {
				result = "up"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", hc.Name, hc.URL, result)
		}
	}
	return tw.Flush()
}

func runLogs(ctx context.Context, opts Options, env runEnv, service string) error {
	a, err := newApp(opts, env)
	if err != nil {
		return err
	}
	if err := a.resolveTools(ctx); err != nil {
		return err
	}
	err = a.compose.FollowLogs(ctx, service, a.cfg.LogTail, env.Stdout)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runModels(ctx context.Context, opts Options, env runEnv) error {
	a, err := newApp(opts, env)
	if err != nil {
		return err
	}
	if err := a.resolveTools(ctx); err != nil {
		return err
	}
	have, err := a.models.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models in %s: %w", a.cfg.ModelService, err)
	}
	required := a.stack.requiredModels()
	missing := gate.Missing(required, have)
	return writeModels(env.Stdout, required, have, missing)
}

func writeModels(w io.Writer, required, have, missing []string) error {
	isMissing := make(map[string]bool, len(missing))
	for _, m := range missing {
		isMissing[m] = true
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tSTATUS")
	for _, r := range required {
		st := "available"
		if isMissing[r] {
			st = "missing"
		}
		fmt.Fprintf(tw, "%s\t%s\n", r, st)
	}
	// Models the server has that nobody asked for.
	for _, h := range gate.Missing(have, required) {
		fmt.Fprintf(tw, "%s\t%s\n", h, "extra")
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return errors.New("missing models: " + strings.Join(missing, ", "))
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
