package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "stack.yaml", `project: rag
compose_files: [docker-compose.yml, docker-compose.gpu.yml]
infra_services: [postgres, ollama]
required_models: [qwen2.5:7b]
health_attempts: 10
http_checks:
  - name: api
    url: http://localhost:9000/healthz
env_files:
  - target: .env
    template: env.template
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "rag" || len(cfg.ComposeFiles) != 2 || cfg.InfraServices[0] != "postgres" || cfg.HealthAttempts != 10 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.HTTPChecks) != 1 || cfg.HTTPChecks[0].URL != "http://localhost:9000/healthz" {
		t.Fatalf("unexpected http checks: %+v", cfg.HTTPChecks)
	}
	if cfg.EnvFiles[0].Template != "env.template" {
		t.Fatalf("unexpected env files: %+v", cfg.EnvFiles)
	}
	if cfg.Dir != d {
		t.Fatalf("dir should default to the file's directory, got %q", cfg.Dir)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "stack.json", `{"project":"p","dir":"sub","app_services":["api"],"bootstrap_timeout_seconds":60}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "p" || cfg.AppServices[0] != "api" || cfg.BootstrapTimeoutSeconds != 60 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Dir != filepath.Join(d, "sub") {
		t.Fatalf("relative dir not anchored: %q", cfg.Dir)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "stack.toml", "project=\"t\"\nmodel_service=\"llm\"\ndata_dirs=[\"/srv/data\"]\nhealth_delay_seconds=5\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "t" || cfg.ModelService != "llm" || cfg.DataDirs[0] != "/srv/data" || cfg.HealthDelay() != 5*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "stack.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	bad := writeTempFile(t, d, "bad.yaml", "project: x\n: broken\n")
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
	badJSON := writeTempFile(t, d, "bad.json", `{ "project": }`)
	if _, err := Load(badJSON); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
	badTOML := writeTempFile(t, d, "bad.toml", "project\n")
	if _, err := Load(badTOML); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestWithDefaults(t *testing.T) {
	s := Stack{HealthAttempts: 3, RequiredModels: []string{}}.WithDefaults()
	d := Defaults()
	if s.HealthAttempts != 3 {
		t.Fatalf("explicit value overwritten: %d", s.HealthAttempts)
	}
	if len(s.RequiredModels) != 0 {
		t.Fatalf("explicit empty model list must be kept, got %v", s.RequiredModels)
	}
	if s.HTTPAttempts != d.HTTPAttempts || s.EntryURL != d.EntryURL || len(s.InfraServices) != 2 {
		t.Fatalf("defaults not applied: %+v", s)
	}
}

func TestResolve(t *testing.T) {
	s := Stack{Dir: "/srv/stack"}
	if got := s.Resolve(".env"); got != filepath.Join("/srv/stack", ".env") {
		t.Fatalf("resolve relative: %q", got)
	}
	if got := s.Resolve("/etc/x"); got != "/etc/x" {
		t.Fatalf("resolve absolute: %q", got)
	}
}

func TestHomeRelativePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	s := Stack{Dir: "/srv/stack"}
	if got := s.Resolve("~/models"); got != filepath.Join(home, "models") {
		t.Fatalf("resolve home: %q", got)
	}
	writeTempFile(t, home, "stack.yaml", "dir: ~/stack\ndata_dirs: [~/pg]\n")
	cfg, err := LoadOrDefault("~/stack.yaml", "/unused")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dir != filepath.Join(home, "stack") {
		t.Fatalf("dir not expanded: %q", cfg.Dir)
	}
	if got := cfg.Resolve(cfg.DataDirs[0]); got != filepath.Join(home, "pg") {
		t.Fatalf("data dir not expanded: %q", got)
	}
}

func TestLoadOrDefault(t *testing.T) {
	d := t.TempDir()
	s, err := LoadOrDefault("", d)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if s.Dir != d || s.ModelService != "ollama" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	writeTempFile(t, d, "stackctl.yaml", "project: found\n")
	s, err = LoadOrDefault("", d)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if s.Project != "found" || s.HealthAttempts != Defaults().HealthAttempts {
		t.Fatalf("unexpected discovered cfg: %+v", s)
	}
	if _, err := LoadOrDefault(filepath.Join(d, "nope.yaml"), d); err == nil {
		t.Fatalf("expected error for explicit missing path")
	}
}
