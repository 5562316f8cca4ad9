package reporting

import (
	"context"
	"encoding/json"
	"errors"

	"outbound-caller/internal/audit"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Outcome results and statuses as written by the orchestrator.
const (
	resultEnded   = "ENDED"
	resultTimeout = "TIMEOUT"
	resultError   = "ERROR"

	statusHangup     = "HANGUP"
	statusTerminated = "TERMINATED"
	statusVoicemail  = "VOICEMAIL"
)

// Service derives reports from the immutable audit trail.
type Service struct {
	events audit.Reader
}

func NewService(events audit.Reader) *Service { return &Service{events: events} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.events == nil {
		return Summary{}, errors.New("reporting: event source not configured")
	}

	evs, err := s.events.List(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Range: req.Range}
	for _, e := range evs {
		switch e.Type {
		case audit.EventTypeDispatched:
			out.Dispatched++
		case audit.EventTypeCallbackScheduled:
			out.CallbacksScheduled++
		case audit.EventTypeTransferRequested:
			out.TransfersRequested++
		case audit.EventTypeOutcome:
			out.Finished++
			countOutcome(&out, e)
		}
	}
	if out.Finished > 0 {
		out.AnswerRate = float64(out.Ended) / float64(out.Finished)
	}
	return out, nil
}

type outcomeDetails struct {
	Status string `json:"status"`
}

func countOutcome(out *Summary, e audit.Event) {
	switch e.Message {
	case resultEnded:
		out.Ended++
	case resultTimeout:
		out.TimedOut++
		return
	case resultError:
		out.Failed++
		return
	default:
		return
	}

	var d outcomeDetails
	// unparseable details still count as ended
	_ = json.Unmarshal([]byte(e.Metadata), &d)
	switch d.Status {
	case statusHangup:
		out.HungUp++
	case statusTerminated:
		out.Terminated++
	case statusVoicemail:
		out.Voicemail++
	}
}
