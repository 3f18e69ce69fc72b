// Package adapter defines the notification boundary for completed queries.
//
// Adapters publish query completion notifications to downstream systems.
// The session owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"
)

// EventQueryCompleted is the event_type of every QueryCompletedEvent.
const EventQueryCompleted = "query_completed"

// Query outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeRemoteError    = "remote_error"
	OutcomeTransportError = "transport_error"
	OutcomeClientError    = "client_error"
)

// QueryCompletedEvent is the payload published when a query or exec finishes.
type QueryCompletedEvent struct {
	EventType  string   `json:"event_type"` // always "query_completed"
	SessionID  string   `json:"session_id"`
	QueryID    string   `json:"query_id"`
	Endpoint   string   `json:"endpoint"`
	Bucket     string   `json:"bucket"`
	File       string   `json:"file"`
	Query      string   `json:"query"`
	Outcome    string   `json:"outcome"`
	Columns    []string `json:"columns,omitempty"`
	RowCount   int      `json:"row_count"`
	Changes    int64    `json:"changes"`
	DurationMs int64    `json:"duration_ms"`
	Timestamp  string   `json:"timestamp"` // RFC 3339
	Error      string   `json:"error,omitempty"`
}

// NewQueryCompletedEvent fills the fixed fields of an event.
func NewQueryCompletedEvent(sessionID, queryID string, finished time.Time, elapsed time.Duration) *QueryCompletedEvent {
	return &QueryCompletedEvent{
		EventType:  EventQueryCompleted,
		SessionID:  sessionID,
		QueryID:    queryID,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  finished.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes query completion events to a downstream system.
type Adapter interface {
	// Publish sends a query completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *QueryCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
