package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - session_id is required; every event belongs to one call session.
// - actor capture is best-effort; do not block call flows on audit failures.
type Event struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated API user causing the event, empty for
	// events raised by the agent or the call itself.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	RoomID   string `json:"room,omitempty" db:"room"`
	Identity string `json:"identity,omitempty" db:"identity"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeDispatched        EventType = "call_dispatched"
	EventTypeOutcome           EventType = "call_outcome"
	EventTypeVoicemail         EventType = "voicemail_detected"
	EventTypeCallbackScheduled EventType = "callback_scheduled"
	EventTypeTransferRequested EventType = "transfer_requested"
	EventTypeActionInvoked     EventType = "action_invoked"
)
