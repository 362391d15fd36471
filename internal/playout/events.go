package playout

import "time"

// Status values for playout lifecycle events.
type Status string

const (
	StatusPending     Status = "pending"
	StatusPlaying     Status = "playing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Event records one state transition of a playout. Per item, emission
// order is strictly pending, playing, then exactly one terminal status.
type Event struct {
	Timestamp time.Time
	Status    Status
	Item      Item
	LatencyMs float64 // set on terminal states
	Error     string
}

// EventListener receives playout events.
type EventListener func(Event)
