package stackctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Main runs the CLI with os.Args and returns the process exit code.
func Main() int { return MainWithArgs(os.Args[1:]) }

// MainWithArgs runs the CLI with explicit arguments. SIGINT and SIGTERM
// cancel the run; in-flight commands and the log stream are stopped.
func MainWithArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// run returns 0 on success, 1 when the command failed and 2 on a usage error.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := DefaultOptions()
	env := &runEnv{Stdin: stdin, Stdout: stdout, Stderr: stderr, RunID: uuid.NewString()}
	env.Log = newLogger(stderr, opts.LogLevel, env.RunID)

	root := buildRootCmd(&opts, env)
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error { return usageError{err} })

	err := root.ExecuteContext(ctx)
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "error: %v\nRun 'stackctl --help' for usage.\n", err)
		return 2
	case ctx.Err() != nil:
		env.Log.Warn().Msg("interrupted")
		return 1
	default:
		env.Log.Error().Err(err).Msg("stackctl failed")
		return 1
	}
}

// usageArgs is cobra.ExactArgs reporting a usage error.
func usageArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// buildRootCmd constructs the command tree wired to the fn* actions. Flags
// are written into opts; env.Log is rebuilt once the log level is known.
func buildRootCmd(opts *Options, env *runEnv) *cobra.Command {
	var noSubmodules bool
	upRun := func(cmd *cobra.Command, args []string) error {
		return fnUp(cmd.Context(), *opts, *env)
	}
	root := &cobra.Command{
		Use:   "stackctl",
		Short: "Bring up the local compose stack in order, gated on readiness",
		Long: "stackctl resolves the container tooling, prepares env files and data\n" +
			"directories, starts infrastructure services, waits for them to be healthy\n" +
			"and for required models to download, then starts the application services.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: upRun,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.AutoApprove, "yes", "y", opts.AutoApprove, "Approve tool installation without prompting (defaults STACKCTL_AUTO_APPROVE)")
	pf.BoolVar(&noSubmodules, "no-submodules", false, "Do not sync git submodules")
	pf.BoolVar(&opts.PullLatest, "pull-latest", opts.PullLatest, "Update submodules to their remote branch heads")
	pf.BoolVar(&opts.SkipModelWait, "skip-model-wait", opts.SkipModelWait, "Start applications without waiting for model downloads")
	pf.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Stack file (defaults STACKCTL_CONFIG or ./stackctl.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug|info|warn|error (defaults STACKCTL_LOG_LEVEL or info)")
	pf.StringVar(&opts.StatusAddr, "status-addr", opts.StatusAddr, "Serve /status and /metrics on this address while running")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noSubmodules {
			opts.SyncSubmodules = false
		}
		env.Log = newLogger(env.Stderr, opts.LogLevel, env.RunID)
	}

	upCmd := &cobra.Command{Use: "up", Short: "Run the full bring-up sequence (default)", Args: usageArgs(0), RunE: upRun}
	downCmd := &cobra.Command{Use: "down", Short: "Stop the stack; volumes are kept", Args: usageArgs(0), RunE: func(cmd *cobra.Command, args []string) error {
		return fnDown(cmd.Context(), *opts, *env)
	}}
	statusCmd := &cobra.Command{Use: "status", Short: "Show service health and HTTP checks", Args: usageArgs(0), RunE: func(cmd *cobra.Command, args []string) error {
		return fnStatus(cmd.Context(), *opts, *env)
	}}
	logsCmd := &cobra.Command{Use: "logs <service>", Short: "Follow a service's logs until interrupted", Example: "  stackctl logs ollama", Args: usageArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return fnLogs(cmd.Context(), *opts, *env, args[0])
	}}
	modelsCmd := &cobra.Command{Use: "models", Short: "List required and available models", Args: usageArgs(0), RunE: func(cmd *cobra.Command, args []string) error {
		return fnModels(cmd.Context(), *opts, *env)
	}}
	root.AddCommand(upCmd, downCmd, statusCmd, logsCmd, modelsCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)

	return root
}
