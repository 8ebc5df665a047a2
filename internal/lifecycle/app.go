package lifecycle

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/loykin/tbox/internal/config"
	"github.com/loykin/tbox/internal/kvstore"
	"github.com/loykin/tbox/internal/shutdown"
)

// App is the daemon's business logic. Execute runs as the single execution
// task; a non-zero result ends the process with that status. ctx is
// cancelled when shutdown begins, and the coordinator never waits on
// Execute beyond the configured drain window.
type App interface {
	Execute(ctx context.Context, rt *Runtime) int
}

// Initializer is implemented by apps that need setup before Execute.
// A returned error aborts startup; Cleanup still runs.
type Initializer interface {
	Initialize(ctx context.Context, rt *Runtime) error
}

// Cleaner is implemented by apps that release resources on exit. It runs
// exactly once per Run after Initialize was attempted. Its error is logged
// and never changes the exit status.
type Cleaner interface {
	Cleanup(ctx context.Context, rt *Runtime) error
}

// AppFunc adapts a function to App.
type AppFunc func(ctx context.Context, rt *Runtime) int

func (f AppFunc) Execute(ctx context.Context, rt *Runtime) int { return f(ctx, rt) }

// Runtime is what the coordinator hands to the app hooks.
type Runtime struct {
	Name   string
	Config *config.Config
	Logger *slog.Logger
	Store  kvstore.Store
	flag   *shutdown.Flag
	stop   *atomic.Bool
}

// Values returns the raw configuration document.
func (rt *Runtime) Values() config.Values {
	if rt.Config == nil {
		return config.Values{}
	}
	return rt.Config.Values()
}

// RequestShutdown asks the coordinator to stop with exit status 0. The
// shutdown flag is left untouched.
func (rt *Runtime) RequestShutdown() {
	if rt.stop != nil {
		rt.stop.Store(true)
	}
}

// ShutdownRequested reports whether a signal or RequestShutdown asked the
// coordinator to stop.
func (rt *Runtime) ShutdownRequested() bool {
	if rt.stop != nil && rt.stop.Load() {
		return true
	}
	return rt.flag != nil && rt.flag.Requested()
}
