// Package config loads the per-profile YAML document that drives a daemon.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/loykin/tbox/internal/env"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/logger"
	tlsutil "github.com/loykin/tbox/internal/tls"
)

// EnvPrefix prefixes environment overrides: TBOX_LOGGER_LEVEL=info.
const EnvPrefix = "TBOX"

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultMetricsListen = ":9464"
	DefaultAdminListen   = "127.0.0.1:8089"
	DefaultAdminBasePath = "/api"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

type Lifecycle struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout" validate:"gte=0"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

type Admin struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Listen   string         `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
	BasePath string         `mapstructure:"base_path" yaml:"base_path"`
	TLS      tlsutil.Config `mapstructure:"tls" yaml:"tls"`
}

type History struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Config is the typed part of the document. Application sections live next
// to these and are reached through Values.
type Config struct {
	Logger    logger.Config  `mapstructure:"logger" yaml:"logger"`
	Lifecycle Lifecycle      `mapstructure:"lifecycle" yaml:"lifecycle"`
	Store     kvstore.Config `mapstructure:"store" yaml:"store"`
	Metrics   Metrics        `mapstructure:"metrics" yaml:"metrics"`
	Admin     Admin          `mapstructure:"admin" yaml:"admin"`
	History   History        `mapstructure:"history" yaml:"history"`

	// Profile and Path record where the document came from.
	Profile string `mapstructure:"-" yaml:"-"`
	Path    string `mapstructure:"-" yaml:"-"`

	values Values
}

// Values exposes the raw document.
func (c *Config) Values() Values { return c.values }

// Options controls where Load looks. Zero value resolves everything from the
// process environment.
type Options struct {
	// File bypasses profile resolution when set.
	File    string
	Dir     string
	Profile string
	Lookup  env.Lookup
}

// Resolve returns the profile and file Load would use.
func (o Options) Resolve() (profile, path string) {
	profile = o.Profile
	if profile == "" {
		profile = env.Profile(o.Lookup)
	}
	if o.File != "" {
		return profile, o.File
	}
	dir := o.Dir
	if dir == "" {
		dir = env.ConfigDir(o.Lookup)
	}
	return profile, env.ConfigPath(dir, profile)
}

// Load reads, defaults and validates the configuration.
func Load(o Options) (*Config, error) {
	profile, path := o.Resolve()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	v := viper.New()
	setupViper(v, path)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cfg.Profile = profile
	cfg.Path = path
	cfg.values = Values{v: v}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only reaches keys viper already knows about; registering
	// defaults makes every typed key overridable from the environment.
	v.SetDefault("logger.type", logger.TypeConsole)
	v.SetDefault("logger.path", "")
	v.SetDefault("logger.level", "debug")
	v.SetDefault("logger.format", logger.FormatText)
	v.SetDefault("logger.color", false)
	v.SetDefault("lifecycle.poll_interval", DefaultPollInterval)
	v.SetDefault("lifecycle.drain_timeout", time.Duration(0))
	v.SetDefault("store.type", kvstore.TypeFile)
	v.SetDefault("store.path", kvstore.DefaultPath)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.listen", DefaultAdminListen)
	v.SetDefault("admin.base_path", DefaultAdminBasePath)
	v.SetDefault("admin.tls.enabled", false)
	v.SetDefault("admin.tls.cert_file", "")
	v.SetDefault("admin.tls.key_file", "")
	v.SetDefault("admin.tls.dir", "")
	v.SetDefault("admin.tls.auto_generate", false)
	v.SetDefault("history.dsn", "")
}

// ApplyDefaults fills zero values. Load calls it; embedders building a
// Config by hand should too.
func ApplyDefaults(c *Config) {
	if c.Logger.Type == "" {
		c.Logger.Type = logger.TypeConsole
	}
	if c.Lifecycle.PollInterval <= 0 {
		c.Lifecycle.PollInterval = DefaultPollInterval
	}
	if c.Store.Type == "" {
		c.Store.Type = kvstore.TypeFile
	}
	if c.Store.Path == "" {
		c.Store.Path = kvstore.DefaultPath
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = DefaultAdminListen
	}
	if c.Admin.BasePath == "" {
		c.Admin.BasePath = DefaultAdminBasePath
	}
}

var validate = validator.New()

// Validate checks struct tags and returns ErrInvalidConfig wrapping the
// first failures.
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
