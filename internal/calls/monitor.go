package calls

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outbound-caller/internal/telephony"
)

const (
	DefaultMonitorInterval = 500 * time.Millisecond
	// Ticks between repeated log lines for an absent or unknown status.
	DefaultLogEvery = 10
	// Ticks between attribute dumps at debug level.
	DefaultDumpEvery = 20
)

// TerminationReason says why Monitor.Run returned.
type TerminationReason string

const (
	ReasonHangup     TerminationReason = "HANGUP"
	ReasonTerminated TerminationReason = "TERMINATED"
	ReasonDeparted   TerminationReason = "DEPARTED"
	ReasonCancelled  TerminationReason = "CANCELLED"
)

// Status returns the session status that reason implies, if any.
func (r TerminationReason) Status() (Status, bool) {
	switch r {
	case ReasonHangup:
		return StatusHangup, true
	case ReasonTerminated, ReasonDeparted:
		return StatusTerminated, true
	}
	return "", false
}

var rawStatuses = map[string]Status{
	"active":     StatusActive,
	"hangup":     StatusHangup,
	"terminated": StatusTerminated,
	"automating": StatusAutomating,
}

// MapRawStatus maps the provider's call-status attribute to a Status.
func MapRawStatus(raw string) (Status, bool) {
	s, ok := rawStatuses[raw]
	return s, ok
}

// Monitor polls a joined participant's call status until the call ends.
type Monitor struct {
	Roster telephony.ControlPlane

	Interval    time.Duration
	ReadTimeout time.Duration
	LogEvery    int
	DumpEvery   int

	Log     *slog.Logger
	Metrics Recorder
}

// Run polls until the participant hangs up, is terminated or leaves the room.
// Cancelling ctx stops the loop at the next tick boundary with
// ReasonCancelled; an in-flight read completes first. Run leaves the session
// status untouched on cancellation.
func (m *Monitor) Run(ctx context.Context, s *Session) TerminationReason {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	readTimeout := m.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	logEvery := m.LogEvery
	if logEvery <= 0 {
		logEvery = DefaultLogEvery
	}
	dumpEvery := m.DumpEvery
	if dumpEvery <= 0 {
		dumpEvery = DefaultDumpEvery
	}
	rec := m.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "monitor", "session_id", s.ID, "room", s.RoomID, "identity", s.Identity)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		if reason, done := m.tick(ctx, s, tick, readTimeout, logEvery, dumpEvery, log, rec); done {
			log.Info("monitor finished", "reason", reason, "status", s.Status())
			return reason
		}

		select {
		case <-ctx.Done():
			return ReasonCancelled
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context, s *Session, tick int, readTimeout time.Duration, logEvery, dumpEvery int, log *slog.Logger, rec Recorder) (TerminationReason, bool) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
	ps, err := m.Roster.ListParticipants(readCtx, s.RoomID)
	cancel()

	if errors.Is(err, telephony.ErrRoomNotFound) {
		log.Info("room closed")
		return ReasonDeparted, true
	}
	if err != nil {
		rec.TickError()
		log.Warn("status read failed", "tick", tick, "err", err)
		return "", false
	}

	p, ok := telephony.FindParticipant(ps, s.Identity)
	if !ok {
		log.Info("participant left the room", "last_raw_status", s.LastRawStatus())
		return ReasonDeparted, true
	}

	if tick%dumpEvery == 0 {
		log.Debug("participant attributes", "tick", tick, "attributes", p.Attributes)
	}

	raw, present := p.CallStatus()
	if !present {
		if tick%logEvery == 0 {
			log.Info("call status not set", "tick", tick, "status", s.Status())
		}
		return "", false
	}
	s.Observe(raw)

	next, known := MapRawStatus(raw)
	if !known {
		if tick%logEvery == 0 {
			log.Warn("unknown call status", "tick", tick, "raw", raw, "status", s.Status())
		}
		return "", false
	}

	prev := s.Status()
	if prev != next {
		if err := s.Transition(ctx, next); err != nil {
			log.Debug("status change ignored", "from", prev, "raw", raw, "err", err)
			return "", false
		}
		log.Info("call status changed", "from", prev, "to", next, "raw", raw)
	}

	switch next {
	case StatusHangup:
		return ReasonHangup, true
	case StatusTerminated:
		return ReasonTerminated, true
	}
	return "", false
}
