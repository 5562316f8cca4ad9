package calls

import (
	"context"
	"log/slog"
	"time"

	"outbound-caller/internal/telephony"
)

const (
	DefaultJoinTimeout   = 30 * time.Second
	DefaultJoinPollSlice = time.Second
)

// JoinWaiter resolves a dialed identity to its joined participant.
//
// The roster is checked before subscribing and again on every wake, so a
// join that lands between the first scan and the subscription is still seen
// within one slice.
type JoinWaiter struct {
	Roster telephony.ControlPlane
	Events telephony.JoinEvents

	Timeout time.Duration
	Slice   time.Duration
	Log     *slog.Logger
}

func (w *JoinWaiter) AwaitJoin(ctx context.Context, roomID, identity string, timeout time.Duration) (telephony.Participant, error) {
	if timeout <= 0 {
		timeout = w.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	slice := w.Slice
	if slice <= 0 {
		slice = DefaultJoinPollSlice
	}
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "join_waiter", "room", roomID, "identity", identity)

	deadline := time.Now().Add(timeout)

	if p, ok := w.scan(ctx, log, roomID, identity); ok {
		return p, nil
	}

	var events <-chan telephony.Participant
	if w.Events != nil {
		sub, err := w.Events.SubscribeJoins(ctx, roomID, identity)
		if err != nil {
			log.Warn("join subscription failed, polling only", "err", err)
		} else {
			defer sub.Close()
			events = sub.C()
		}
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return telephony.Participant{}, &JoinTimeoutError{RoomID: roomID, Identity: identity, Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			return telephony.Participant{}, ctx.Err()
		case p := <-events:
			log.Debug("join event received", "event_identity", p.Identity)
		case <-time.After(min(slice, remaining)):
		}

		if p, ok := w.scan(ctx, log, roomID, identity); ok {
			return p, nil
		}
	}
}

// scan reports whether identity is listed. Read errors count as not found.
func (w *JoinWaiter) scan(ctx context.Context, log *slog.Logger, roomID, identity string) (telephony.Participant, bool) {
	ps, err := w.Roster.ListParticipants(ctx, roomID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("roster read failed", "err", err)
		}
		return telephony.Participant{}, false
	}
	return telephony.FindParticipant(ps, identity)
}
