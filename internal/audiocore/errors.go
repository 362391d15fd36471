package audiocore

import "errors"

// Sentinel errors for the core error taxonomy. Callers match these with
// errors.Is; enhanced errors built around them carry component and context.
var (
	// ErrSourceNotStopped is returned when starting an adapter that is not
	// in the stopped state.
	ErrSourceNotStopped = errors.New("source is not stopped")

	// ErrSourceNotFound is returned for operations on unknown source names.
	ErrSourceNotFound = errors.New("source not found")

	// ErrDuplicateSubscriber is returned when a subscriber id already holds
	// a subscription on the bus.
	ErrDuplicateSubscriber = errors.New("subscriber id already exists")

	// ErrCaptureFailed is the persistent-capture failure after the
	// reconnect cap has been exhausted.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrNotRunning is returned when an operation requires a running source.
	ErrNotRunning = errors.New("source not running")
)
