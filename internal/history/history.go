// Package history exports daemon run records (start and stop of the
// lifecycle) to external systems for fleet statistics.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventRunStart EventType = "run_start"
	EventRunStop  EventType = "run_stop"
)

// Stop reasons recorded on run_stop.
const (
	ReasonSignal     = "signal"
	ReasonRequested  = "requested"
	ReasonTaskFailed = "task_failed"
	ReasonInitFailed = "init_failed"
	ReasonContext    = "context"
)

// Event is one row of run history. ExitCode is meaningful on run_stop only.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	App        string    `json:"app"`
	Profile    string    `json:"profile"`
	PID        int       `json:"pid"`
	Reason     string    `json:"reason,omitempty"`
	ExitCode   int       `json:"exit_code"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// TableName is the table every SQL sink writes to.
const TableName = "tbox_run_history"
