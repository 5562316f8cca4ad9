package actions

import (
	"context"
	"errors"
	"time"

	"outbound-caller/internal/calls"
	"outbound-caller/internal/callbacks"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/telephony"

	"github.com/google/uuid"
)

const (
	EndCall           = "end_call"
	DetectedVoicemail = "detected_voicemail"
	ScheduleCallback  = "schedule_callback"
	TransferToHuman   = "transfer_to_human"
)

// ParamType is the JSON-schema type advertised for a parameter.
type ParamType string

const ParamString ParamType = "string"

type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Spec describes a command to the agent's language model.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

type handler func(ctx context.Context, d *Dispatcher, t target, args map[string]string) (string, error)

type command struct {
	Spec
	run handler
}

var table = []command{
	{
		Spec: Spec{
			Name:        EndCall,
			Description: "Called when the user wants to end the call",
		},
		run: endCall,
	},
	{
		Spec: Spec{
			Name:        DetectedVoicemail,
			Description: "Called when the agent detects it has reached a voicemail instead of a person",
		},
		run: detectedVoicemail,
	},
	{
		Spec: Spec{
			Name:        ScheduleCallback,
			Description: "Called when the user requests to be called back at a specific time or date",
			Params: []Param{
				{Name: "time", Type: ParamString, Description: "Time to call back"},
				{Name: "date", Type: ParamString, Description: "Date to call back"},
			},
		},
		run: scheduleCallback,
	},
	{
		Spec: Spec{
			Name:        TransferToHuman,
			Description: "Called when the agent needs to transfer the call to a human agent",
			Params: []Param{
				{Name: "reason", Type: ParamString, Description: "Reason for transferring to a human agent"},
			},
		},
		run: transferToHuman,
	},
}

func endCall(ctx context.Context, d *Dispatcher, t target, _ map[string]string) (string, error) {
	d.endMu.Lock()
	defer d.endMu.Unlock()

	if d.removed || t.session.Status().Terminal() {
		return "The call has already ended.", nil
	}
	err := d.remover.RemoveParticipant(ctx, t.session.RoomID, t.participant.Identity)
	if errors.Is(err, telephony.ErrParticipantNotFound) {
		// the callee hung up before the monitor noticed
		d.removed = true
		d.requestEnd()
		return "The call has already ended.", nil
	}
	if err != nil {
		return "", err
	}
	d.removed = true
	d.requestEnd()
	d.log.Info("call ended by agent", "session_id", t.session.ID, "identity", t.participant.Identity)
	return "Call ended.", nil
}

func detectedVoicemail(ctx context.Context, d *Dispatcher, t target, _ map[string]string) (string, error) {
	if err := t.session.Transition(ctx, calls.StatusVoicemail); err != nil {
		d.log.Warn("voicemail not recorded", "session_id", t.session.ID, "status", t.session.Status(), "err", err)
		return "The call has already ended.", nil
	}
	if d.audit != nil {
		if err := d.audit.LogVoicemail(ctx, t.subject()); err != nil {
			d.log.Warn("audit voicemail failed", "err", err)
		}
	}

	// let the beep pass before the voice pipeline speaks
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(d.grace):
	}
	return "Voicemail message left", nil
}

func scheduleCallback(ctx context.Context, d *Dispatcher, t target, args map[string]string) (string, error) {
	phone, ok := calls.PhoneFromIdentity(t.participant.Identity)
	if !ok {
		phone = t.session.PhoneNumber
	}
	in := callbacks.Intent{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Date:        args["date"],
		Time:        args["time"],
		RoomID:      t.session.RoomID,
		SessionID:   t.session.ID,
		RequestedAt: d.now().UTC(),
	}

	if d.callbacks == nil {
		d.log.Info("callback requested", "phone_number", in.PhoneNumber, "date", in.Date, "time", in.Time)
	} else {
		saved, err := d.callbacks.Schedule(ctx, in)
		if err != nil {
			return "", err
		}
		in = saved
	}
	if d.audit != nil {
		if err := d.audit.LogCallback(ctx, t.subject(), in.ID, in.Date, in.Time); err != nil {
			d.log.Warn("audit callback failed", "err", err)
		}
	}
	return "Callback scheduled successfully", nil
}

func transferToHuman(ctx context.Context, d *Dispatcher, t target, args map[string]string) (string, error) {
	phone, _ := calls.PhoneFromIdentity(t.participant.Identity)
	req := handoff.Request{
		ID:          uuid.NewString(),
		SessionID:   t.session.ID,
		RoomID:      t.session.RoomID,
		Identity:    t.participant.Identity,
		PhoneNumber: phone,
		Reason:      args["reason"],
		RequestedAt: d.now().UTC(),
	}

	if d.handoff == nil {
		d.log.Info("transfer requested", "identity", req.Identity, "reason", req.Reason)
	} else if err := d.handoff.Enqueue(ctx, req); err != nil {
		return "", err
	}
	if d.audit != nil {
		if err := d.audit.LogTransfer(ctx, t.subject(), req.Reason); err != nil {
			d.log.Warn("audit transfer failed", "err", err)
		}
	}
	return "Transfer to human requested. A human agent has been notified.", nil
}
