package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Reader lists events created in [from, to), oldest first.
type Reader interface {
	List(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Service records call lifecycle events.
//
// Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SessionID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Subject identifies the call an event is about.
type Subject struct {
	SessionID string
	RoomID    string
	Identity  string
}

func (s *Service) LogDispatch(ctx context.Context, sub Subject, actorUserID, actorRole string) error {
	return s.Append(ctx, Event{
		SessionID:   sub.SessionID,
		Type:        EventTypeDispatched,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		RoomID:      sub.RoomID,
		Identity:    sub.Identity,
		Message:     "call dispatched",
	})
}

// LogOutcome records how a session ended. details is marshalled into
// Metadata.
func (s *Service) LogOutcome(ctx context.Context, sub Subject, result string, details any) error {
	return s.Append(ctx, Event{
		SessionID: sub.SessionID,
		Type:      EventTypeOutcome,
		RoomID:    sub.RoomID,
		Identity:  sub.Identity,
		Message:   result,
		Metadata:  marshal(details),
	})
}

func (s *Service) LogVoicemail(ctx context.Context, sub Subject) error {
	return s.Append(ctx, Event{
		SessionID: sub.SessionID,
		Type:      EventTypeVoicemail,
		RoomID:    sub.RoomID,
		Identity:  sub.Identity,
		Message:   "voicemail detected",
	})
}

func (s *Service) LogCallback(ctx context.Context, sub Subject, callbackID, date, clock string) error {
	return s.Append(ctx, Event{
		SessionID: sub.SessionID,
		Type:      EventTypeCallbackScheduled,
		RoomID:    sub.RoomID,
		Identity:  sub.Identity,
		Message:   "callback scheduled",
		Metadata:  marshal(map[string]string{"callback_id": callbackID, "date": date, "time": clock}),
	})
}

func (s *Service) LogTransfer(ctx context.Context, sub Subject, reason string) error {
	return s.Append(ctx, Event{
		SessionID: sub.SessionID,
		Type:      EventTypeTransferRequested,
		RoomID:    sub.RoomID,
		Identity:  sub.Identity,
		Message:   "transfer requested",
		Metadata:  marshal(map[string]string{"reason": reason}),
	})
}

// LogAction records an action invoked through the API on behalf of the agent.
func (s *Service) LogAction(ctx context.Context, sub Subject, actorUserID, actorRole, action, result string) error {
	return s.Append(ctx, Event{
		SessionID:   sub.SessionID,
		Type:        EventTypeActionInvoked,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		RoomID:      sub.RoomID,
		Identity:    sub.Identity,
		Message:     action,
		Metadata:    marshal(map[string]string{"result": result}),
	})
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
