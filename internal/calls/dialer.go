package calls

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"outbound-caller/internal/telephony"
)

// Recorder receives call lifecycle measurements. The metrics package
// provides the production implementation.
type Recorder interface {
	DialSubmitted(ok bool)
	TickError()
}

type nopRecorder struct{}

func (nopRecorder) DialSubmitted(bool) {}
func (nopRecorder) TickError()         {}

// DialRequest is the input to PlaceCall. Timeout bounds the join wait that
// follows; zero means the waiter's default.
type DialRequest struct {
	PhoneNumber string
	TrunkID     string
	RoomID      string
	Timeout     time.Duration
}

// CallHandle is a submitted call that has not necessarily connected.
type CallHandle struct {
	Session *Session
	Ack     telephony.CallAck
	Timeout time.Duration
}

type Dialer struct {
	cp      telephony.ControlPlane
	log     *slog.Logger
	metrics Recorder
}

func NewDialer(cp telephony.ControlPlane, log *slog.Logger, rec Recorder) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Dialer{cp: cp, log: log.With("component", "dialer"), metrics: rec}
}

// Prepare validates req and builds the session without submitting it.
func Prepare(req DialRequest) (*Session, error) {
	phone, err := Normalize(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TrunkID) == "" {
		return nil, &ValidationError{Msg: "missing trunk id"}
	}
	if strings.TrimSpace(req.RoomID) == "" {
		return nil, &ValidationError{Msg: "missing room id"}
	}
	return NewSession(phone, strings.TrimSpace(req.TrunkID), req.RoomID), nil
}

// PlaceCall validates and submits the call. It does not wait for the callee
// to answer.
func (d *Dialer) PlaceCall(ctx context.Context, req DialRequest) (*CallHandle, error) {
	s, err := Prepare(req)
	if err != nil {
		return nil, err
	}
	return d.Submit(ctx, s, req.Timeout)
}

// Submit dials a prepared session. A provider rejection moves the session to
// ERROR and is not retried.
func (d *Dialer) Submit(ctx context.Context, s *Session, timeout time.Duration) (*CallHandle, error) {
	log := d.log.With("session_id", s.ID, "room", s.RoomID, "identity", s.Identity)

	if err := s.Transition(ctx, StatusDialing); err != nil {
		return nil, err
	}

	ack, err := d.cp.CreateCallParticipant(ctx, telephony.CreateCallRequest{
		RoomID:       s.RoomID,
		TrunkID:      s.TrunkID,
		ToNumber:     s.PhoneNumber,
		Identity:     s.Identity,
		DisplayName:  DisplayName(s.PhoneNumber),
		PlayDialtone: true,
	})
	if err != nil {
		d.metrics.DialSubmitted(false)
		_ = s.Transition(context.WithoutCancel(ctx), StatusError)
		log.Error("dial rejected", "trunk_id", s.TrunkID, "err", err)
		return nil, &ProviderError{Op: "create call participant", Msg: telephony.ErrorMessage(err), Err: err}
	}

	d.metrics.DialSubmitted(true)
	log.Info("dial submitted", "trunk_id", s.TrunkID, "sip_call_id", ack.SIPCallID)
	return &CallHandle{Session: s, Ack: ack, Timeout: timeout}, nil
}
