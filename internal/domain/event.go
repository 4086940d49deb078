package domain

import "time"

// EventKind classifies telemetry events.
type EventKind string

// Event kinds
const (
	EventEntryFilled     EventKind = "ENTRY_FILLED"
	EventExitFilled      EventKind = "EXIT_FILLED"
	EventExecutionFailed EventKind = "EXECUTION_FAILED"
	EventEntryRejected   EventKind = "ENTRY_REJECTED"
	EventMigration       EventKind = "MIGRATION"
)

// Event is a telemetry record fanned out to alert sinks.
type Event struct {
	Kind       EventKind `json:"kind"`
	Token      string    `json:"token"`
	Symbol     string    `json:"symbol,omitempty"`
	PositionID string    `json:"position_id,omitempty"`
	Venue      Venue     `json:"venue,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Price      float64   `json:"price,omitempty"`
	PnL        string    `json:"pnl,omitempty"` // decimal SOL, set on exits
	Signature  string    `json:"signature,omitempty"`
	At         time.Time `json:"at"`
}
