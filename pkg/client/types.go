package client

import "time"

// Status is the daemon snapshot returned by /status.
type Status struct {
	App               string    `json:"app"`
	Profile           string    `json:"profile"`
	Phase             string    `json:"phase"`
	ShutdownRequested bool      `json:"shutdown_requested"`
	StartedAt         time.Time `json:"started_at"`
}

// Value is one stored key/value entry.
type Value struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetRequest is the body of PUT /kv/:key.
type SetRequest struct {
	Value string `json:"value"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
