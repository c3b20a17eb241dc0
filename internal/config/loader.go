package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"stackctl/internal/common/fsutil"
)

// HTTPCheck is a URL polled after the application tier starts.
type HTTPCheck struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	URL  string `json:"url" yaml:"url" toml:"url"`
}

// EnvFile is materialized by copying Template to Target when Target is absent.
type EnvFile struct {
	Target   string `json:"target" yaml:"target" toml:"target"`
	Template string `json:"template" yaml:"template" toml:"template"`
}

// Stack describes the compose project being orchestrated.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Stack struct {
	Dir          string   `json:"dir" yaml:"dir" toml:"dir"`
	Project      string   `json:"project" yaml:"project" toml:"project"`
	ComposeFiles []string `json:"compose_files" yaml:"compose_files" toml:"compose_files"`

	InfraServices []string `json:"infra_services" yaml:"infra_services" toml:"infra_services"`
	AppServices   []string `json:"app_services" yaml:"app_services" toml:"app_services"`
	ModelService  string   `json:"model_service" yaml:"model_service" toml:"model_service"`

	RequiredModels          []string `json:"required_models" yaml:"required_models" toml:"required_models"`
	BootstrapTimeoutSeconds int      `json:"bootstrap_timeout_seconds" yaml:"bootstrap_timeout_seconds" toml:"bootstrap_timeout_seconds"`

	HealthAttempts     int `json:"health_attempts" yaml:"health_attempts" toml:"health_attempts"`
	HealthDelaySeconds int `json:"health_delay_seconds" yaml:"health_delay_seconds" toml:"health_delay_seconds"`

	HTTPChecks       []HTTPCheck `json:"http_checks" yaml:"http_checks" toml:"http_checks"`
	HTTPAttempts     int         `json:"http_attempts" yaml:"http_attempts" toml:"http_attempts"`
	HTTPDelaySeconds int         `json:"http_delay_seconds" yaml:"http_delay_seconds" toml:"http_delay_seconds"`

	DaemonAttempts     int `json:"daemon_attempts" yaml:"daemon_attempts" toml:"daemon_attempts"`
	DaemonDelaySeconds int `json:"daemon_delay_seconds" yaml:"daemon_delay_seconds" toml:"daemon_delay_seconds"`

	EnvFiles []EnvFile `json:"env_files" yaml:"env_files" toml:"env_files"`
	DataDirs []string  `json:"data_dirs" yaml:"data_dirs" toml:"data_dirs"`

	EntryURL string `json:"entry_url" yaml:"entry_url" toml:"entry_url"`
	LogTail  int    `json:"log_tail" yaml:"log_tail" toml:"log_tail"`
}

// Defaults returns the stack shipped with the repository: postgres, ollama,
// the API, the web UI and the backup scheduler.
func Defaults() Stack {
	return Stack{
		Dir:                     ".",
		InfraServices:           []string{"db", "ollama"},
		AppServices:             []string{"api", "ui", "backup"},
		ModelService:            "ollama",
		RequiredModels:          []string{"llama3.1:8b", "nomic-embed-text"},
		BootstrapTimeoutSeconds: 3600,
		HealthAttempts:          60,
		HealthDelaySeconds:      2,
		HTTPChecks: []HTTPCheck{
			{Name: "api", URL: "http://localhost:8000/health"},
			{Name: "ui", URL: "http://localhost:3000"},
		},
		HTTPAttempts:       30,
		HTTPDelaySeconds:   2,
		DaemonAttempts:     30,
		DaemonDelaySeconds: 2,
		EnvFiles:           []EnvFile{{Target: ".env", Template: ".env.example"}},
		DataDirs:           []string{"data/postgres", "data/ollama", "data/uploads", "backups"},
		EntryURL:           "http://localhost:3000",
		LogTail:            50,
	}
}

// WithDefaults fills every unspecified field from Defaults.
func (s Stack) WithDefaults() Stack {
	d := Defaults()
	if s.Dir == "" {
		s.Dir = d.Dir
	}
	if len(s.InfraServices) == 0 {
		s.InfraServices = d.InfraServices
	}
	if len(s.AppServices) == 0 {
		s.AppServices = d.AppServices
	}
	if s.ModelService == "" {
		s.ModelService = d.ModelService
	}
	if s.RequiredModels == nil {
		s.RequiredModels = d.RequiredModels
	}
	if s.BootstrapTimeoutSeconds <= 0 {
		s.BootstrapTimeoutSeconds = d.BootstrapTimeoutSeconds
	}
	if s.HealthAttempts <= 0 {
		s.HealthAttempts = d.HealthAttempts
	}
	if s.HealthDelaySeconds <= 0 {
		s.HealthDelaySeconds = d.HealthDelaySeconds
	}
	if s.HTTPChecks == nil {
		s.HTTPChecks = d.HTTPChecks
	}
	if s.HTTPAttempts <= 0 {
		s.HTTPAttempts = d.HTTPAttempts
	}
	if s.HTTPDelaySeconds <= 0 {
		s.HTTPDelaySeconds = d.HTTPDelaySeconds
	}
	if s.DaemonAttempts <= 0 {
		s.DaemonAttempts = d.DaemonAttempts
	}
	if s.DaemonDelaySeconds <= 0 {
		s.DaemonDelaySeconds = d.DaemonDelaySeconds
	}
	if s.EnvFiles == nil {
		s.EnvFiles = d.EnvFiles
	}
	if s.DataDirs == nil {
		s.DataDirs = d.DataDirs
	}
	if s.EntryURL == "" {
		s.EntryURL = d.EntryURL
	}
	if s.LogTail <= 0 {
		s.LogTail = d.LogTail
	}
	return s
}

// Resolve returns p relative to the stack directory unless it is absolute
// or starts with "~/".
func (s Stack) Resolve(p string) string {
	if exp, err := fsutil.ExpandHome(p); err == nil {
		p = exp
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Dir, p)
}

func (s Stack) HealthDelay() time.Duration { return time.Duration(s.HealthDelaySeconds) * time.Second }
func (s Stack) HTTPDelay() time.Duration   { return time.Duration(s.HTTPDelaySeconds) * time.Second }
func (s Stack) DaemonDelay() time.Duration { return time.Duration(s.DaemonDelaySeconds) * time.Second }

// Load reads a stack file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Stack, error) {
	var cfg Stack
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	// Relative directories are anchored at the file's location.
	if cfg.Dir, err = fsutil.ExpandHome(cfg.Dir); err != nil {
		return cfg, err
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(filepath.Dir(path), cfg.Dir)
	}
	return cfg, nil
}

// DefaultFiles are looked up in the working directory when no path is given.
var DefaultFiles = []string{"stackctl.yaml", "stackctl.yml", "stackctl.toml", "stackctl.json"}

// LoadOrDefault loads path, or the first DefaultFiles entry present in dir,
// and applies defaults. With no file at all it returns Defaults.
func LoadOrDefault(path, dir string) (Stack, error) {
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return Stack{}, err
	}
	if path == "" {
		for _, name := range DefaultFiles {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		s := Defaults()
		s.Dir = dir
		return s, nil
	}
	s, err := Load(path)
	if err != nil {
		return Stack{}, fmt.Errorf("load %s: %w", path, err)
	}
	return s.WithDefaults(), nil
}
