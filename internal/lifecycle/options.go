package lifecycle

import (
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/tbox/internal/config"
	"github.com/loykin/tbox/internal/history"
	"github.com/loykin/tbox/internal/shutdown"
)

type options struct {
	name       string
	loadOpts   config.Options
	cfg        *config.Config
	flag       *shutdown.Flag
	logWriter  io.Writer
	stderr     io.Writer
	sink       history.Sink
	registerer prometheus.Registerer
	signals    bool
}

// Option configures a Coordinator.
type Option func(*options)

func defaultOptions() options {
	return options{
		name:       filepath.Base(os.Args[0]),
		stderr:     os.Stderr,
		registerer: prometheus.DefaultRegisterer,
		signals:    true,
	}
}

// WithName sets the application name used in logs and history.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithConfigOptions controls where the configuration file is looked up.
func WithConfigOptions(lo config.Options) Option { return func(o *options) { o.loadOpts = lo } }

// WithConfig supplies an already built configuration instead of reading a
// file. Defaults and validation still apply.
func WithConfig(cfg *config.Config) Option { return func(o *options) { o.cfg = cfg } }

// WithShutdownFlag shares an externally owned flag.
func WithShutdownFlag(f *shutdown.Flag) Option { return func(o *options) { o.flag = f } }

// WithLogWriter sends log output to w instead of the configured sink.
func WithLogWriter(w io.Writer) Option { return func(o *options) { o.logWriter = w } }

// WithStderr replaces the writer used for errors reported before logging
// exists.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithHistorySink overrides history.dsn.
func WithHistorySink(s history.Sink) Option { return func(o *options) { o.sink = s } }

// WithRegisterer selects the prometheus registerer. Metrics are registered
// once per process: after the first successful registration, later
// registerers are ignored and receive no tbox collectors.
func WithRegisterer(r prometheus.Registerer) Option { return func(o *options) { o.registerer = r } }

// WithoutSignals skips OS signal handling; shutdown then comes only from
// the flag or the parent context. Embedders that own signal handling use it.
func WithoutSignals() Option { return func(o *options) { o.signals = false } }
