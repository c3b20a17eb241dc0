package stackctl

import (
	"os"
	"time"
)

// Environment variables read at startup.
const (
	EnvBootstrapTimeout = "MODEL_BOOTSTRAP_TIMEOUT" // seconds
	EnvBootstrapVerbose = "MODEL_BOOTSTRAP_VERBOSE"
	EnvRequiredModels   = "REQUIRED_MODELS" // comma-separated
	EnvAutoApprove      = "STACKCTL_AUTO_APPROVE"
	EnvConfig           = "STACKCTL_CONFIG"
	EnvLogLevel         = "STACKCTL_LOG_LEVEL"
	EnvStatusAddr       = "STACKCTL_STATUS_ADDR"
)

// Options is the run configuration captured once at startup from flags and
// environment. It is never modified after the sequence begins.
type Options struct {
	AutoApprove    bool
	SyncSubmodules bool
	PullLatest     bool
	SkipModelWait  bool

	// BootstrapTimeout of zero means the stack file's value.
	BootstrapTimeout time.Duration
	VerboseBootstrap bool
	// RequiredModels, when non-nil, overrides the stack file's list.
	RequiredModels []string

	ConfigPath string
	LogLevel   string
	StatusAddr string
	// Dir is where the stack file is looked up; defaults to the working directory.
	Dir string
}

// DefaultOptions reads the environment. Flags are layered on top by the CLI.
func DefaultOptions() Options {
	o := Options{
		AutoApprove:      envBool(EnvAutoApprove, false),
		SyncSubmodules:   true,
		VerboseBootstrap: envBool(EnvBootstrapVerbose, true),
		ConfigPath:       envStr(EnvConfig, ""),
		LogLevel:         envStr(EnvLogLevel, "info"),
		StatusAddr:       envStr(EnvStatusAddr, ""),
	}
	if secs := envInt(EnvBootstrapTimeout, 0); secs > 0 {
		o.BootstrapTimeout = time.Duration(secs) * time.Second
	}
	if v, ok := os.LookupEnv(EnvRequiredModels); ok {
		o.RequiredModels = splitCSV(v)
		if o.RequiredModels == nil {
			o.RequiredModels = []string{}
		}
	}
	if wd, err := os.Getwd(); err == nil {
		o.Dir = wd
	} else {
		o.Dir = "."
	}
	return o
}
