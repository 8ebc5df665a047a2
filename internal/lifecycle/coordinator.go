// Package lifecycle drives a daemon through configuration, logging, signal
// handling, user initialization, execution and cleanup, in that order and
// exactly once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/tbox/internal/config"
	"github.com/loykin/tbox/internal/history"
	"github.com/loykin/tbox/internal/history/factory"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/logger"
	"github.com/loykin/tbox/internal/metrics"
	"github.com/loykin/tbox/internal/server"
	"github.com/loykin/tbox/internal/shutdown"
	"github.com/loykin/tbox/internal/task"
	tlsutil "github.com/loykin/tbox/internal/tls"
)

// Exit statuses. Non-zero task results are returned unchanged.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPanic   = task.ExitPanic
)

// ErrAlreadyRun is reported by Err after a second Run on one Coordinator.
var ErrAlreadyRun = errors.New("lifecycle: coordinator already run")

const teardownTimeout = 5 * time.Second

// Coordinator owns one run of an App.
type Coordinator struct {
	app  App
	opts options

	ran  atomic.Bool
	stop atomic.Bool

	mu        sync.Mutex
	phase     Phase
	history   []Phase
	cfg       *config.Config
	err       error
	startedAt time.Time

	flag *shutdown.Flag
	log  *slog.Logger
}

// New creates a coordinator in PhaseCreated.
func New(app App, opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	flag := o.flag
	if flag == nil {
		flag = &shutdown.Flag{}
	}
	return &Coordinator{
		app:     app,
		opts:    o,
		phase:   PhaseCreated,
		history: []Phase{PhaseCreated},
		flag:    flag,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// History returns every phase entered so far, in order.
func (c *Coordinator) History() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Phase(nil), c.history...)
}

// Config returns the loaded configuration, or nil before ConfigLoaded.
func (c *Coordinator) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Err returns the error that made Run fail during startup, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ShutdownFlag returns the flag the coordinator polls.
func (c *Coordinator) ShutdownFlag() *shutdown.Flag { return c.flag }

// Status implements server.StatusProvider.
func (c *Coordinator) Status() server.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := server.Status{
		App:               c.opts.name,
		Phase:             c.phase.String(),
		ShutdownRequested: c.flag.Requested() || c.stop.Load(),
		StartedAt:         c.startedAt,
	}
	if c.cfg != nil {
		st.Profile = c.cfg.Profile
	}
	return st
}

func (c *Coordinator) transition(to Phase) {
	c.mu.Lock()
	from := c.phase
	if to <= from {
		c.mu.Unlock()
		return
	}
	c.phase = to
	c.history = append(c.history, to)
	c.mu.Unlock()

	metrics.RecordTransition(from.String(), to.String())
	metrics.SetPhase(to.String(), PhaseNames())
	c.log.Debug("lifecycle phase", "from", from.String(), "to", to.String())
}

func (c *Coordinator) fail(err error) int {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return ExitFailure
}

// Run executes the whole sequence and returns the process exit status. It
// may be called once; later calls return ExitFailure.
func (c *Coordinator) Run(ctx context.Context) int {
	if !c.ran.CompareAndSwap(false, true) {
		return c.fail(ErrAlreadyRun)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		// nothing else is set up yet, so stderr is the only channel
		_, _ = fmt.Fprintf(c.opts.stderr, "%s: %v\n", c.opts.name, err)
		return c.fail(err)
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.transition(PhaseConfigLoaded)

	log, closer, err := c.newLogger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(c.opts.stderr, "%s: logger: %v\n", c.opts.name, err)
		return c.fail(err)
	}
	prev := slog.Default()
	slog.SetDefault(log)
	c.log = log.With("app", c.opts.name)
	defer func() {
		slog.SetDefault(prev)
		_ = closer.Close()
	}()
	if cfg.Metrics.Enabled || cfg.Admin.Enabled {
		if err := metrics.Register(c.opts.registerer); err != nil {
			c.log.Warn("metrics registration failed", "error", err)
		}
	}
	c.transition(PhaseLoggingReady)
	c.log.Info("starting", "profile", cfg.Profile, "config", cfg.Path)

	if c.opts.signals {
		w := shutdown.NewWatcher(c.flag)
		w.Arm()
		defer w.Disarm()
	}
	c.transition(PhaseSignalsArmed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := &Runtime{Name: c.opts.name, Config: cfg, Logger: c.log, flag: c.flag, stop: &c.stop}
	res := c.openResources(cfg, rt)
	defer res.close(c.log)

	code, reason, h := c.startAndWait(runCtx, rt, res)

	c.transition(PhaseShuttingDown)
	cancel()
	metrics.RecordShutdown(reason)
	if h != nil {
		c.drain(h)
	}
	c.cleanup(ctx, rt)
	c.transition(PhaseCleanedUp)

	c.emit(ctx, res.sink, history.EventRunStop, reason, code)
	c.log.Info("stopped", "exit_code", code, "reason", reason)
	return code
}

func (c *Coordinator) loadConfig() (*config.Config, error) {
	if c.opts.cfg == nil {
		return config.Load(c.opts.loadOpts)
	}
	cfg := *c.opts.cfg
	config.ApplyDefaults(&cfg)
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Coordinator) newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if c.opts.logWriter != nil {
		return cfg.Logger.NewWithWriter(c.opts.logWriter), nopCloser{}, nil
	}
	return logger.New(cfg.Logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// startAndWait runs Initialize and Execute and returns once shutdown is due.
// The handle is nil when Execute was never started.
func (c *Coordinator) startAndWait(ctx context.Context, rt *Runtime, res *resources) (int, string, *task.Handle) {
	if res.err != nil {
		c.log.Error("startup failed", "error", res.err)
		return c.fail(res.err), history.ReasonInitFailed, nil
	}
	if err := c.initialize(ctx, rt); err != nil {
		c.log.Error("initialization failed", "error", err)
		return c.fail(err), history.ReasonInitFailed, nil
	}
	c.transition(PhaseUserInitialized)

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.transition(PhaseRunning)
	c.emit(ctx, res.sink, history.EventRunStart, "", 0)

	h := task.Go(ctx, func(ctx context.Context) int { return c.app.Execute(ctx, rt) })
	code, reason := c.wait(ctx, h)
	return code, reason, h
}

// wait polls the flag and the task until one of them ends the run.
func (c *Coordinator) wait(ctx context.Context, h *task.Handle) (int, string) {
	ticker := time.NewTicker(c.Config().Lifecycle.PollInterval)
	defer ticker.Stop()
	done := h.Done()
	for {
		if c.flag.Requested() {
			c.log.Info("shutdown requested")
			return ExitOK, history.ReasonSignal
		}
		if c.stop.Load() {
			c.log.Info("shutdown requested by app")
			return ExitOK, history.ReasonRequested
		}
		if code, ok := h.Poll(); ok && done != nil {
			done = nil
			metrics.RecordTaskExit(code)
			var pe *task.PanicError
			if errors.As(h.Err(), &pe) {
				c.log.Error("execution task panicked", "panic", fmt.Sprint(pe.Value), "stack", string(pe.Stack))
			}
			if code != ExitOK {
				c.log.Error("execution task failed", "exit_code", code)
				c.flag.Request()
				return code, history.ReasonTaskFailed
			}
			c.log.Info("execution task finished, waiting for shutdown request")
		}
		select {
		case <-ticker.C:
		case <-done:
		case <-ctx.Done():
			c.log.Info("context cancelled", "error", ctx.Err())
			c.stop.Store(true)
			return ExitOK, history.ReasonContext
		}
	}
}

// drain gives a still running task the configured grace period after its
// context is cancelled. The task is never stopped forcibly.
func (c *Coordinator) drain(h *task.Handle) {
	d := c.Config().Lifecycle.DrainTimeout
	if d <= 0 {
		return
	}
	if _, ok := h.Poll(); ok {
		return
	}
	if _, ok := h.Wait(d); !ok {
		c.log.Warn("execution task still running after drain timeout", "drain_timeout", d)
	}
}

func (c *Coordinator) initialize(ctx context.Context, rt *Runtime) (err error) {
	in, ok := c.app.(Initializer)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return in.Initialize(ctx, rt)
}

func (c *Coordinator) cleanup(ctx context.Context, rt *Runtime) {
	cl, ok := c.app.(Cleaner)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cleanup panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	// the parent context may already be cancelled; cleanup still gets to run
	if err := cl.Cleanup(context.WithoutCancel(ctx), rt); err != nil {
		c.log.Error("cleanup failed", "error", err)
	}
}

func (c *Coordinator) emit(ctx context.Context, sink history.Sink, t history.EventType, reason string, code int) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now(),
		App:        c.opts.name,
		Profile:    c.Config().Profile,
		PID:        os.Getpid(),
		Reason:     reason,
		ExitCode:   code,
	}
	if err := sink.Send(ctx, e); err != nil {
		c.log.Warn("history send failed", "event", string(t), "error", err)
	}
}

// resources are opened after SignalsArmed and closed when Run returns.
type resources struct {
	store   kvstore.Store
	sink    history.Sink
	servers []*http.Server
	ownSink bool
	err     error
}

func (c *Coordinator) openResources(cfg *config.Config, rt *Runtime) *resources {
	res := &resources{sink: c.opts.sink}

	st, err := kvstore.Open(cfg.Store)
	if err != nil {
		res.err = fmt.Errorf("open store: %w", err)
		return res
	}
	res.store = st
	rt.Store = st

	if res.sink == nil && cfg.History.DSN != "" {
		s, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			c.log.Warn("history sink disabled", "error", err)
		} else {
			res.sink, res.ownSink = s, true
		}
	}

	if cfg.Metrics.Enabled {
		srv, err := server.NewMetricsServer(cfg.Metrics.Listen)
		if err != nil {
			c.log.Warn("metrics server not started", "listen", cfg.Metrics.Listen, "error", err)
		} else {
			c.log.Info("metrics server listening", "addr", srv.Addr)
			res.servers = append(res.servers, srv)
		}
	}
	if cfg.Admin.Enabled {
		if srv, err := c.startAdmin(cfg.Admin, st); err != nil {
			c.log.Warn("admin server not started", "listen", cfg.Admin.Listen, "error", err)
		} else {
			c.log.Info("admin server listening", "addr", srv.Addr, "base_path", cfg.Admin.BasePath, "tls", cfg.Admin.TLS.Enabled)
			res.servers = append(res.servers, srv)
		}
	}
	return res
}

func (c *Coordinator) startAdmin(a config.Admin, st kvstore.Store) (*http.Server, error) {
	tlsCfg, err := tlsutil.Setup(a.TLS)
	if err != nil {
		return nil, err
	}
	return server.NewServer(a.Listen, a.BasePath, c, st, tlsCfg)
}

func (r *resources) close(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	for _, srv := range r.servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown", "addr", srv.Addr, "error", err)
		}
	}
	if r.ownSink && r.sink != nil {
		if err := r.sink.Close(); err != nil {
			log.Warn("history sink close", "error", err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Warn("store close", "error", err)
		}
	}
}
