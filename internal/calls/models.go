package calls

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDialing    Status = "DIALING"
	StatusActive     Status = "ACTIVE"
	StatusAutomating Status = "AUTOMATING"
	StatusVoicemail  Status = "VOICEMAIL"
	StatusHangup     Status = "HANGUP"
	StatusTerminated Status = "TERMINATED"
	StatusTimeout    Status = "TIMEOUT"
	StatusError      Status = "ERROR"
)

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusHangup, StatusTerminated, StatusTimeout, StatusError:
		return true
	}
	return false
}

// Events are named after their destination status.
func eventFor(to Status) string { return strings.ToLower(string(to)) }

var live = []string{
	string(StatusDialing), string(StatusActive), string(StatusAutomating), string(StatusVoicemail),
}

func newMachine(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		string(StatusPending),
		fsm.Events{
			{Name: eventFor(StatusDialing), Src: []string{string(StatusPending)}, Dst: string(StatusDialing)},
			{Name: eventFor(StatusActive), Src: []string{string(StatusDialing), string(StatusAutomating)}, Dst: string(StatusActive)},
			{Name: eventFor(StatusAutomating), Src: []string{string(StatusActive)}, Dst: string(StatusAutomating)},
			{Name: eventFor(StatusVoicemail), Src: []string{string(StatusActive), string(StatusAutomating)}, Dst: string(StatusVoicemail)},
			{Name: eventFor(StatusHangup), Src: live, Dst: string(StatusHangup)},
			{Name: eventFor(StatusTerminated), Src: live, Dst: string(StatusTerminated)},
			{Name: eventFor(StatusTimeout), Src: []string{string(StatusDialing)}, Dst: string(StatusTimeout)},
			{Name: eventFor(StatusError), Src: append([]string{string(StatusPending)}, live...), Dst: string(StatusError)},
		},
		callbacks,
	)
}

// Session is one outbound call from dial to termination.
//
// PhoneNumber, TrunkID, RoomID and Identity never change after NewSession.
// Status changes only through Transition; terminal states are final.
type Session struct {
	ID          string
	PhoneNumber string
	TrunkID     string
	RoomID      string
	Identity    string

	mu        sync.Mutex
	machine   *fsm.FSM
	now       func() time.Time
	createdAt time.Time
	joinedAt  time.Time
	endedAt   time.Time
	lastRaw   string
}

// NewSession expects an already normalized phone number.
func NewSession(phone, trunkID, roomID string) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		TrunkID:     trunkID,
		RoomID:      roomID,
		Identity:    Identity(phone),
		now:         time.Now,
	}
	s.createdAt = s.now().UTC()
	// enter_state runs inside Transition, which holds s.mu.
	s.machine = newMachine(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			at := s.now().UTC()
			dst := Status(e.Dst)
			if dst == StatusActive && s.joinedAt.IsZero() {
				s.joinedAt = at
			}
			if dst.Terminal() && s.endedAt.IsZero() {
				s.endedAt = at
			}
		},
	})
	return s
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status(s.machine.Current())
}

// Can reports whether moving to status is currently allowed. Staying in the
// current status is always allowed.
func (s *Session) Can(to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.can(to)
}

func (s *Session) can(to Status) bool {
	return Status(s.machine.Current()) == to || s.machine.Can(eventFor(to))
}

// Transition moves the session to status. Re-entering the current status is
// a no-op.
func (s *Session) Transition(ctx context.Context, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := Status(s.machine.Current())
	if from == to {
		return nil
	}
	if !s.machine.Can(eventFor(to)) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return s.machine.Event(ctx, eventFor(to))
}

// Observe records the latest raw call-status attribute.
func (s *Session) Observe(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRaw = raw
}

func (s *Session) LastRawStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRaw
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) JoinedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinedAt
}

func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Snapshot is a point-in-time copy of a session for reporting.
type Snapshot struct {
	ID            string     `json:"session_id"`
	PhoneNumber   string     `json:"phone_number"`
	TrunkID       string     `json:"trunk_id"`
	RoomID        string     `json:"room"`
	Identity      string     `json:"identity"`
	Status        Status     `json:"status"`
	LastRawStatus string     `json:"last_raw_status,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	JoinedAt      *time.Time `json:"joined_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		PhoneNumber:   s.PhoneNumber,
		TrunkID:       s.TrunkID,
		RoomID:        s.RoomID,
		Identity:      s.Identity,
		Status:        Status(s.machine.Current()),
		LastRawStatus: s.lastRaw,
		CreatedAt:     s.createdAt,
		JoinedAt:      timePtr(s.joinedAt),
		EndedAt:       timePtr(s.endedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
