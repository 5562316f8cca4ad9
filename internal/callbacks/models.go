package callbacks

import "time"

// Intent is a callback the callee asked for during a call. Date and Time are
// kept as spoken; resolving them to a timestamp is the scheduler's job.
type Intent struct {
	ID          string    `json:"id" db:"id"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	Date        string    `json:"date,omitempty" db:"date"`
	Time        string    `json:"time,omitempty" db:"time"`
	RoomID      string    `json:"room" db:"room"`
	SessionID   string    `json:"session_id,omitempty" db:"session_id"`
	RequestedAt time.Time `json:"requested_at" db:"requested_at"`
}
