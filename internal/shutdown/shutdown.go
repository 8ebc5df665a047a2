// Package shutdown carries the process-wide graceful-termination request.
//
// A Flag is written only by the signal watcher (or by the coordinator when the
// execution task fails) and read by the coordinator's polling loop. Go delivers
// signals to an ordinary goroutine through os/signal, so nothing here runs in
// an interrupted context; the watcher still does no work beyond setting the
// flag for termination signals.
package shutdown

import (
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
)

// Flag is a one-way latch: once requested it stays requested.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Request() { f.v.Store(true) }

func (f *Flag) Requested() bool { return f.v.Load() }

// Watcher relays OS signals into a Flag.
type Watcher struct {
	flag  *Flag
	exit  func(int)
	diag  func([]byte)
	ch    chan os.Signal
	done  chan struct{}
	once  sync.Once
	last  atomic.Value // os.Signal
	fatal map[os.Signal]bool
}

type Option func(*Watcher)

// WithExit replaces os.Exit for fatal signals.
func WithExit(fn func(int)) Option { return func(w *Watcher) { w.exit = fn } }

// WithDiagnostic replaces the stderr writer used for fatal signals.
func WithDiagnostic(fn func([]byte)) Option { return func(w *Watcher) { w.diag = fn } }

func NewWatcher(flag *Flag, opts ...Option) *Watcher {
	w := &Watcher{
		flag: flag,
		exit: os.Exit,
		diag: func(b []byte) { _, _ = os.Stderr.Write(b) },
		ch:   make(chan os.Signal, 4),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.fatal = make(map[os.Signal]bool, len(fatalSignals))
	for _, s := range fatalSignals {
		w.fatal[s] = true
	}
	return w
}

// Arm starts relaying termination and fatal signals.
func (w *Watcher) Arm() {
	sigs := append(append([]os.Signal{}, terminateSignals...), fatalSignals...)
	signal.Notify(w.ch, sigs...)
	go w.loop()
}

// Disarm stops relaying and restores default signal handling. Safe to call
// more than once.
func (w *Watcher) Disarm() {
	w.once.Do(func() {
		signal.Stop(w.ch)
		close(w.done)
	})
}

// Last returns the most recent signal received, or nil.
func (w *Watcher) Last() os.Signal {
	if s, ok := w.last.Load().(os.Signal); ok {
		return s
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case sig := <-w.ch:
			w.last.Store(sig)
			w.flag.Request()
			if w.fatal[sig] {
				w.terminate(sig)
				return
			}
		}
	}
}

// terminate handles an abnormal-termination signal: one fixed diagnostic
// write, then exit. The run loop is never resumed.
func (w *Watcher) terminate(sig os.Signal) {
	code := 1
	if s, ok := sig.(syscall.Signal); ok {
		code = 128 + int(s)
	}
	w.diag([]byte("tbox: fatal signal " + sig.String() + ", exit " + strconv.Itoa(code) + "\n"))
	w.exit(code)
}
