// Package tbox bootstraps vehicle telematics daemons: it loads the profile's
// configuration, sets up logging and signal handling, runs the application
// hooks in order and persists identity values across restarts.
//
// A daemon implements App (and optionally Initializer and Cleaner) and calls
// Main from its main function.
package tbox

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/tbox/internal/config"
	"github.com/loykin/tbox/internal/history"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/lifecycle"
	"github.com/loykin/tbox/internal/metrics"
	"github.com/loykin/tbox/internal/shutdown"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type App = lifecycle.App

type AppFunc = lifecycle.AppFunc

type Initializer = lifecycle.Initializer

type Cleaner = lifecycle.Cleaner

type Runtime = lifecycle.Runtime

type Coordinator = lifecycle.Coordinator

type Option = lifecycle.Option

type Phase = lifecycle.Phase

type Config = config.Config

type ConfigOptions = config.Options

type Values = config.Values

type Store = kvstore.Store

type Key = kvstore.Key

type HistorySink = history.Sink

type ShutdownFlag = shutdown.Flag

const (
	ExitOK      = lifecycle.ExitOK
	ExitFailure = lifecycle.ExitFailure
	ExitPanic   = lifecycle.ExitPanic
)

const (
	KeyVIN             = kvstore.KeyVIN
	KeyICCID           = kvstore.KeyICCID
	KeyBatteryPackCode = kvstore.KeyBatteryPackCode
)

var (
	ErrUnknownKey     = kvstore.ErrUnknownKey
	ErrInvalidValue   = kvstore.ErrInvalidValue
	ErrConfigNotFound = config.ErrConfigNotFound
	ErrAlreadyRun     = lifecycle.ErrAlreadyRun
)

// Options re-exported from lifecycle.
var (
	WithName          = lifecycle.WithName
	WithConfig        = lifecycle.WithConfig
	WithConfigOptions = lifecycle.WithConfigOptions
	WithShutdownFlag  = lifecycle.WithShutdownFlag
	WithLogWriter     = lifecycle.WithLogWriter
	WithStderr        = lifecycle.WithStderr
	WithHistorySink   = lifecycle.WithHistorySink
	WithRegisterer    = lifecycle.WithRegisterer
	WithoutSignals    = lifecycle.WithoutSignals
)

// New returns a coordinator for app.
func New(app App, opts ...Option) *Coordinator { return lifecycle.New(app, opts...) }

// Run executes app once and returns the process exit status. A panic that
// escapes the coordinator is reported on stderr as ExitFailure.
func Run(app App, opts ...Option) (code int) {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "tbox: unhandled panic: %v\n", r)
			code = ExitFailure
		}
	}()
	return New(app, opts...).Run(context.Background())
}

// Main runs app and exits the process with its status.
func Main(app App, opts ...Option) {
	os.Exit(Run(app, opts...))
}

// OpenStore opens the default file backend at path.
func OpenStore(path string) Store { return kvstore.NewFileStore(path) }

// ParseKey accepts a key name ("vin") or its integer form.
func ParseKey(s string) (Key, error) { return kvstore.ParseKey(s) }

// LoadConfig reads configuration the way Run does.
func LoadConfig(o ConfigOptions) (*Config, error) { return config.Load(o) }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
