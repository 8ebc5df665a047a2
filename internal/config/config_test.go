package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/tbox/internal/env"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/logger"
)

func writeProfile(t *testing.T, dir, profile, data string) string {
	t.Helper()
	path := filepath.Join(dir, "config."+profile+".yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv() env.Lookup { return env.FromMap(nil) }

func TestLoadMinimal(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "logger:\n  type: console\n")
	cfg, err := Load(Options{Dir: dir, Lookup: noEnv()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Profile != "dev" {
		t.Fatalf("profile = %q", cfg.Profile)
	}
	if cfg.Lifecycle.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval default = %v", cfg.Lifecycle.PollInterval)
	}
	if cfg.Store.Type != kvstore.TypeFile || cfg.Store.Path != kvstore.DefaultPath {
		t.Fatalf("store defaults: %+v", cfg.Store)
	}
	if cfg.Admin.BasePath != DefaultAdminBasePath {
		t.Fatalf("admin base path = %q", cfg.Admin.BasePath)
	}
}

func TestLoadProfileSelectsFile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "logger:\n  type: console\n  level: debug\n")
	writeProfile(t, dir, "prod", "logger:\n  type: file\n  path: /var/log/tbox.log\n  level: warn\n")
	cfg, err := Load(Options{Dir: dir, Lookup: env.FromMap(map[string]string{env.ProfileVar: "prod"})})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logger.Type != logger.TypeFile || cfg.Logger.Level != "warn" {
		t.Fatalf("prod logger not loaded: %+v", cfg.Logger)
	}
	if cfg.Path != filepath.Join(dir, "config.prod.yaml") {
		t.Fatalf("path = %q", cfg.Path)
	}
}

func TestLoadDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "logger:\n  type: console\n")
	cfg, err := Load(Options{Lookup: env.FromMap(map[string]string{env.ConfigDirVar: dir})})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if filepath.Dir(cfg.Path) != dir {
		t.Fatalf("dir not taken from env: %q", cfg.Path)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("lifecycle:\n  poll_interval: 50ms\n  drain_timeout: 2s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(Options{File: path, Lookup: noEnv()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lifecycle.PollInterval != 50*time.Millisecond || cfg.Lifecycle.DrainTimeout != 2*time.Second {
		t.Fatalf("durations not decoded: %+v", cfg.Lifecycle)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Options{Dir: t.TempDir(), Lookup: noEnv()})
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadUnparsable(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "logger: [unterminated\n")
	_, err := Load(Options{Dir: dir, Lookup: noEnv()})
	if err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"file logger without path": "logger:\n  type: file\n",
		"unknown logger type":      "logger:\n  type: syslog\n",
		"unknown store":            "store:\n  type: redis\n",
		"negative drain":           "lifecycle:\n  drain_timeout: -1s\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeProfile(t, dir, "dev", doc)
			_, err := Load(Options{Dir: dir, Lookup: noEnv()})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "logger:\n  type: console\n  level: debug\n")
	t.Setenv("TBOX_LOGGER_LEVEL", "error")
	t.Setenv("TBOX_ADMIN_ENABLED", "true")
	cfg, err := Load(Options{Dir: dir, Lookup: noEnv()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logger.Level != "error" {
		t.Fatalf("env override ignored: %q", cfg.Logger.Level)
	}
	if !cfg.Admin.Enabled {
		t.Fatalf("admin.enabled override ignored")
	}
}

func TestValuesExposeAppSections(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", `
logger:
  type: console
agent:
  name: tcu-01
  heartbeat: 3s
  retries: 4
  verbose: true
`)
	cfg, err := Load(Options{Dir: dir, Lookup: noEnv()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	vals := cfg.Values()
	if vals.GetString("agent.name") != "tcu-01" || vals.GetInt("agent.retries") != 4 ||
		!vals.GetBool("agent.verbose") || vals.GetDuration("agent.heartbeat") != 3*time.Second {
		t.Fatalf("unexpected values")
	}
	if !vals.IsSet("agent.name") || vals.IsSet("agent.missing") {
		t.Fatalf("IsSet mismatch")
	}
	var sec struct {
		Name    string        `mapstructure:"name"`
		Retries int           `mapstructure:"retries"`
		Beat    time.Duration `mapstructure:"heartbeat"`
	}
	if err := vals.UnmarshalKey("agent", &sec); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if sec.Name != "tcu-01" || sec.Retries != 4 || sec.Beat != 3*time.Second {
		t.Fatalf("section = %+v", sec)
	}
}

func TestZeroValues(t *testing.T) {
	var v Values
	if v.GetString("x") != "" || v.GetInt("x") != 0 || v.IsSet("x") || v.UnmarshalKey("x", &struct{}{}) != nil {
		t.Fatalf("zero Values should be inert")
	}
}

func TestApplyDefaultsAndValidate(t *testing.T) {
	var c Config
	ApplyDefaults(&c)
	if err := Validate(&c); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	c.Lifecycle.PollInterval = -time.Second
	if err := Validate(&c); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("negative poll interval accepted: %v", err)
	}
}

func TestLoadAdminTLS(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "dev", "admin:\n  enabled: true\n  tls:\n    enabled: true\n    dir: /etc/tbox/tls\n    auto_generate: true\n    min_version: \"1.2\"\n")
	cfg, err := Load(Options{Dir: dir, Lookup: noEnv()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Admin.TLS.Enabled || !cfg.Admin.TLS.AutoGenerate || cfg.Admin.TLS.Dir != "/etc/tbox/tls" || cfg.Admin.TLS.MinVersion != "1.2" {
		t.Fatalf("admin tls: %+v", cfg.Admin.TLS)
	}

	writeProfile(t, dir, "bad", "admin:\n  tls:\n    min_version: \"1.1\"\n")
	if _, err := Load(Options{Dir: dir, Profile: "bad", Lookup: noEnv()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
