// Package task runs one function in its own goroutine and exposes a handle
// the caller can poll or wait on with a bound.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ExitPanic is the completion code reported when the function panicked.
const ExitPanic = 2

// PanicError carries a recovered panic value and its stack.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Handle observes a running function.
type Handle struct {
	done chan struct{}
	once sync.Once
	code int
	err  error
}

// Go starts fn(ctx) in a new goroutine. A panic in fn is recovered and turned
// into ExitPanic with a *PanicError from Err.
func Go(ctx context.Context, fn func(context.Context) int) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		code, err := 0, error(nil)
		defer func() {
			if r := recover(); r != nil {
				code, err = ExitPanic, &PanicError{Value: r, Stack: debug.Stack()}
			}
			h.finish(code, err)
		}()
		code = fn(ctx)
	}()
	return h
}

func (h *Handle) finish(code int, err error) {
	h.once.Do(func() {
		h.code, h.err = code, err
		close(h.done)
	})
}

// Done is closed once the function has returned or panicked.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Poll reports the completion code without blocking.
func (h *Handle) Poll() (int, bool) {
	select {
	case <-h.done:
		return h.code, true
	default:
		return 0, false
	}
}

// Wait blocks up to timeout for completion. A non-positive timeout polls.
func (h *Handle) Wait(timeout time.Duration) (int, bool) {
	if timeout <= 0 {
		return h.Poll()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return h.code, true
	case <-t.C:
		return 0, false
	}
}

// Err returns the recovered panic, if any, once the task is done.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
