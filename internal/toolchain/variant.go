package toolchain

import "stackctl/internal/execx"

// Variant tags how a tool is invoked.
type Variant int

const (
	// Direct runs the binary as the current user.
	Direct Variant = iota
	// Elevated runs the binary through sudo.
	Elevated
	// Plugin is the engine's built-in compose subcommand ("docker compose").
	Plugin
	// Standalone is the legacy compose binary ("docker-compose").
	Standalone
)

func (v Variant) String() string {
	switch v {
	case Direct:
		return "direct"
	case Elevated:
		return "elevated"
	case Plugin:
		return "plugin"
	case Standalone:
		return "standalone"
	default:
		return "unknown"
	}
}

const (
	engineBin     = "docker"
	standaloneBin = "docker-compose"
	sudoBin       = "sudo"
)

// ToolChain is the resolved way to reach the container engine and the
// compose tool. It is fixed once resolved and passed by value.
type ToolChain struct {
	Engine        Variant // Direct or Elevated
	Compose       Variant // Plugin or Standalone
	ComposeAccess Variant // Direct or Elevated
}

func (tc ToolChain) String() string {
	return "engine=" + tc.Engine.String() + " compose=" + tc.Compose.String() + "/" + tc.ComposeAccess.String()
}

// EngineCmd builds an engine invocation, e.g. EngineCmd("inspect", id).
func (tc ToolChain) EngineCmd(args ...string) execx.Cmd {
	return wrap(tc.Engine, engineBin, args, false)
}

// ComposeCmd builds a compose invocation, e.g. ComposeCmd("up", "-d").
func (tc ToolChain) ComposeCmd(args ...string) execx.Cmd {
	if tc.Compose == Standalone {
		return wrap(tc.ComposeAccess, standaloneBin, args, false)
	}
	return wrap(tc.ComposeAccess, engineBin, append([]string{"compose"}, args...), false)
}

// wrap prefixes sudo for elevated access. nonInteractive adds -n so a probe
// never blocks on a password prompt.
func wrap(access Variant, bin string, args []string, nonInteractive bool) execx.Cmd {
	if access != Elevated {
		return execx.Cmd{Path: bin, Args: append([]string(nil), args...)}
	}
	pre := []string{}
	if nonInteractive {
		pre = append(pre, "-n")
	}
	pre = append(pre, bin)
	return execx.Cmd{Path: sudoBin, Args: append(pre, args...)}
}
