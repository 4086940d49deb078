package domain

import (
	"errors"
	"fmt"
	"time"
)

// Portfolio and execution errors.
var (
	// ErrAlreadyOpen is returned when a token already holds a PENDING, OPEN or EXITING position.
	ErrAlreadyOpen = errors.New("position already active for token")

	// ErrMaxPositions is returned when the open position cap is reached.
	ErrMaxPositions = errors.New("max open positions reached")

	// ErrInsufficientCapital is returned when a reservation would exceed available capital or the ceiling.
	ErrInsufficientCapital = errors.New("insufficient capital")

	// ErrPositionNotFound is returned when no position matches the token or id.
	ErrPositionNotFound = errors.New("position not found")

	// ErrInvalidTransition is returned when a state change violates the position state machine.
	ErrInvalidTransition = errors.New("invalid position transition")

	// ErrEntriesHalted is returned when new entries are disabled.
	ErrEntriesHalted = errors.New("entries halted")

	// ErrSigningUnavailable is returned after repeated signing failures. Fatal for entries.
	ErrSigningUnavailable = errors.New("signing unavailable")

	// ErrMigrated is returned when a bonding curve has completed and no longer trades.
	ErrMigrated = errors.New("bonding curve migrated")
)

// VenueRejection is a definitive refusal from the venue or the chain:
// the transaction landed with an error or the venue refused to build it.
type VenueRejection struct {
	Venue  Venue
	Reason string
	Err    error
}

func (e *VenueRejection) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("venue %s rejected: %s: %v", e.Venue, e.Reason, e.Err)
	}
	return fmt.Sprintf("venue %s rejected: %s", e.Venue, e.Reason)
}

func (e *VenueRejection) Unwrap() error { return e.Err }

// IsVenueRejection reports whether err wraps a *VenueRejection.
func IsVenueRejection(err error) bool {
	var vr *VenueRejection
	return errors.As(err, &vr)
}

// ConfirmationTimeout means a submitted transaction was neither confirmed
// nor failed within the confirmation window.
type ConfirmationTimeout struct {
	Signature string
	After     time.Duration
}

func (e *ConfirmationTimeout) Error() string {
	return fmt.Sprintf("confirmation timeout for %s after %s", e.Signature, e.After)
}

// ConfigurationError is a fatal startup error for an invalid parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// FeedCorruption is a malformed line in the candidate queue.
type FeedCorruption struct {
	Offset int64 // byte offset of the line start
	Line   string
	Err    error
}

func (e *FeedCorruption) Error() string {
	return fmt.Sprintf("corrupt feed line at offset %d: %v", e.Offset, e.Err)
}

func (e *FeedCorruption) Unwrap() error { return e.Err }
