package toolchain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Tool names an installable component.
type Tool string

const (
	ToolEngine  Tool = "container engine"
	ToolCompose Tool = "compose tool"
)

// Prompter asks the operator before anything is installed on the host.
type Prompter struct {
	AutoApprove bool
	In          io.Reader
	Out         io.Writer
	// Interactive reports whether In is a terminal; defaults to checking In
	// when it is a file and stdin otherwise.
	Interactive func() bool
}

func (p Prompter) interactive() bool {
	if p.Interactive != nil {
		return p.Interactive()
	}
	if f, ok := p.In.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm returns nil when the action may proceed. Without auto-approval a
// non-interactive session fails immediately instead of blocking on a prompt.
func (p Prompter) Confirm(question string) error {
	if p.AutoApprove {
		return nil
	}
	if !p.interactive() {
		return fmt.Errorf("%w: %s (non-interactive session, re-run with --yes)", ErrNotApproved, question)
	}
	in, out := p.In, p.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%w: %s: %v", ErrNotApproved, question, err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotApproved, question)
}

// Installer installs the container engine or compose tool with the host's
// package manager.
type Installer struct {
	Elevator Elevator
	Log      zerolog.Logger
	// GOOS defaults to runtime.GOOS.
	GOOS string
	// OSRelease is the os-release file consulted on Linux.
	OSRelease string
}

func (i Installer) goos() string {
	if i.GOOS != "" {
		return i.GOOS
	}
	return runtime.GOOS
}

// Install installs tool. Unsupported platforms return ErrToolingUnavailable.
func (i Installer) Install(ctx context.Context, tool Tool) error {
	switch goos := i.goos(); {
	case goos == "linux" && isDebianLike(i.OSRelease):
		return i.installApt(ctx, tool)
	case goos == "darwin":
		return i.installBrew(ctx, tool)
	default:
		return fmt.Errorf("%w: automatic install of the %s is not supported on %s; install Docker manually", ErrToolingUnavailable, tool, goos)
	}
}

func (i Installer) installApt(ctx context.Context, tool Tool) error {
	i.Log.Info().Str("tool", string(tool)).Msg("installing with apt-get")
	if err := i.Elevator.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("apt-get update: %w", err)
	}
	if tool == ToolEngine {
		if err := i.Elevator.Run(ctx, "apt-get", "install", "-y", "docker.io"); err != nil {
			return fmt.Errorf("failed to install docker via apt-get: %w", err)
		}
		if err := i.Elevator.Run(ctx, "systemctl", "enable", "--now", "docker"); err != nil {
			i.Log.Warn().Err(err).Msg("could not enable docker service")
		}
		return nil
	}
	// The plugin package only exists in Docker's own repository.
	if err := i.Elevator.Run(ctx, "apt-get", "install", "-y", "docker-compose-plugin"); err != nil {
		i.Log.Info().Err(err).Msg("docker-compose-plugin unavailable, trying docker-compose")
		if err2 := i.Elevator.Run(ctx, "apt-get", "install", "-y", "docker-compose"); err2 != nil {
			return fmt.Errorf("failed to install compose via apt-get: %w", err2)
		}
	}
	return nil
}

func (i Installer) installBrew(ctx context.Context, tool Tool) error {
	if _, err := i.Elevator.Runner.LookPath("brew"); err != nil {
		return fmt.Errorf("%w: Homebrew not found; install Docker Desktop manually", ErrToolingUnavailable)
	}
	i.Log.Info().Str("tool", string(tool)).Msg("installing Docker Desktop with Homebrew")
	if err := i.Elevator.Runner.Run(ctx, cmd("brew", "install", "--cask", "docker")); err != nil {
		return fmt.Errorf("brew install --cask docker: %w", err)
	}
	return nil
}

// isDebianLike returns true if the os-release file names debian or ubuntu
// in ID or ID_LIKE.
func isDebianLike(path string) bool {
	if path == "" {
		path = "/etc/os-release"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "ID=") || strings.HasPrefix(line, "ID_LIKE=") {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "debian") || strings.Contains(lower, "ubuntu") {
				return true
			}
		}
	}
	return false
}
