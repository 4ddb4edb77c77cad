// Package session owns the authenticated-session lifecycle: a pure state
// machine fed by auth events, the broadcast channel those events travel
// on, and the short-lived verification/reset token slots.
package session

import "time"

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

type EventType string

const (
	EventInitStarted    EventType = "init_started"
	EventSessionLoaded  EventType = "session_loaded"
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventVerified       EventType = "verified"
	EventProfileUpdated EventType = "profile_updated"
)

// Event is a session-change notification. It carries the full session
// snapshot so that applying it never requires a follow-up lookup.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId,omitempty"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is the reduced session state. At most one session exists at a
// time; transitions resolve last-write-wins by event timestamp.
type Snapshot struct {
	State  State     `json:"state"`
	UserID string    `json:"userId,omitempty"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role,omitempty"`
	At     time.Time `json:"at"`
}

func NewSnapshot() Snapshot {
	return Snapshot{State: StateUninitialized}
}

// Reduce applies one event to the snapshot. It is pure: no I/O, no new
// asynchronous work. A stale event (older than the snapshot) is ignored.
func Reduce(current Snapshot, event Event) Snapshot {
	if !event.At.IsZero() && event.At.Before(current.At) {
		return current
	}

	switch event.Type {
	case EventInitStarted:
		if current.State == StateUninitialized {
			return Snapshot{State: StateLoading, At: event.At}
		}
		return current
	case EventSessionLoaded, EventSignedIn, EventVerified, EventProfileUpdated:
		if event.UserID == "" {
			return Snapshot{State: StateAnonymous, At: event.At}
		}
		return Snapshot{
			State:  StateAuthenticated,
			UserID: event.UserID,
			Email:  event.Email,
			Role:   event.Role,
			At:     event.At,
		}
	case EventSignedOut:
		return Snapshot{State: StateAnonymous, At: event.At}
	default:
		return current
	}
}
