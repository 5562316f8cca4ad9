package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"outbound-caller/internal/audit"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/callbacks"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"
)

const identity = "phone_user_+15551234567"

type panicRemover struct{}

func (panicRemover) RemoveParticipant(context.Context, string, string) error { panic("boom") }

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, callbacks.Intent) (callbacks.Intent, error) {
	return callbacks.Intent{}, errors.New("db down")
}

type fixture struct {
	cp        *telephony.MemoryControlPlane
	callbacks *callbacks.MemoryRepo
	queue     *handoff.MemoryQueue
	audit     *audit.MemoryRepo
	session   *calls.Session
	d         *Dispatcher
}

func newFixture(t *testing.T, attach bool) *fixture {
	t.Helper()
	f := &fixture{
		cp:        telephony.NewMemoryControlPlane(),
		callbacks: callbacks.NewMemoryRepo(),
		queue:     handoff.NewMemoryQueue(),
		audit:     audit.NewMemoryRepo(),
	}
	f.d = New(Deps{
		Remover:        f.cp,
		Callbacks:      callbacks.NewService(f.callbacks),
		Handoff:        f.queue,
		Audit:          audit.NewService(f.audit),
		VoicemailGrace: time.Millisecond,
	})

	s := calls.NewSession("+15551234567", "T1", "R1")
	ctx := context.Background()
	require.NoError(t, s.Transition(ctx, calls.StatusDialing))
	require.NoError(t, s.Transition(ctx, calls.StatusActive))
	f.session = s

	f.cp.Join("R1", telephony.Participant{Identity: identity})
	if attach {
		f.d.Attach(s, telephony.Participant{Identity: identity})
	}
	return f
}

func TestCommands_Table(t *testing.T) {
	d := New(Deps{})
	specs := d.Commands()
	require.Len(t, specs, 4)

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Description)
	}
	assert.Equal(t, []string{EndCall, DetectedVoicemail, ScheduleCallback, TransferToHuman}, names)
	assert.Equal(t, "time", specs[2].Params[0].Name)
	assert.Equal(t, ParamString, specs[3].Params[0].Type)
}

func TestInvoke_WithoutParticipantIsSafe(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for _, name := range []string{EndCall, DetectedVoicemail, ScheduleCallback, TransferToHuman} {
		out := f.d.Invoke(ctx, name, nil)
		assert.NotEmpty(t, out, name)
	}
	assert.Empty(t, f.cp.Removed(), "no removal without a participant")
	assert.Empty(t, f.callbacks.All())
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, calls.StatusActive, f.session.Status())

	select {
	case <-f.d.EndRequested():
		t.Fatal("end must not be requested")
	default:
	}
}

func TestEndCall_RemovesOnceAndSignals(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	assert.Equal(t, "Call ended.", f.d.Invoke(ctx, EndCall, nil))
	assert.Equal(t, "The call has already ended.", f.d.Invoke(ctx, EndCall, nil))
	assert.Equal(t, []string{identity}, f.cp.Removed())

	select {
	case <-f.d.EndRequested():
	default:
		t.Fatal("expected end requested")
	}
}

func TestEndCall_RemovalFailureIsRetryable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.cp.RemoveErr = errors.New("unavailable")
	assert.Equal(t, apology, f.d.Invoke(ctx, EndCall, nil))

	f.cp.RemoveErr = nil
	assert.Equal(t, "Call ended.", f.d.Invoke(ctx, EndCall, nil))
	assert.Len(t, f.cp.Removed(), 1)
}

func TestEndCall_CalleeAlreadyLeft(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.cp.RemoveErr = twirp.NewError(twirp.NotFound, "participant not found")
	assert.Equal(t, "The call has already ended.", f.d.Invoke(ctx, EndCall, nil))
	assert.Empty(t, f.cp.Removed())

	select {
	case <-f.d.EndRequested():
	default:
		t.Fatal("expected end requested")
	}

	f.cp.RemoveErr = nil
	assert.Equal(t, "The call has already ended.", f.d.Invoke(ctx, EndCall, nil))
	assert.Empty(t, f.cp.Removed(), "no second removal attempt")
}

func TestDetectedVoicemail(t *testing.T) {
	f := newFixture(t, true)

	out := f.d.Invoke(context.Background(), DetectedVoicemail, nil)
	assert.Equal(t, "Voicemail message left", out)
	assert.Equal(t, calls.StatusVoicemail, f.session.Status())
	assert.Len(t, f.audit.OfType(audit.EventTypeVoicemail), 1)
}

func TestScheduleCallback_RecordsIntent(t *testing.T) {
	f := newFixture(t, true)

	out := f.d.Invoke(context.Background(), ScheduleCallback, map[string]string{"date": "2025-03-02", "time": "15:00"})
	assert.Equal(t, "Callback scheduled successfully", out)

	got := f.callbacks.All()
	require.Len(t, got, 1)
	assert.Equal(t, "+15551234567", got[0].PhoneNumber)
	assert.Equal(t, "2025-03-02", got[0].Date)
	assert.Equal(t, "15:00", got[0].Time)
	assert.Equal(t, "R1", got[0].RoomID)
	assert.Equal(t, f.session.ID, got[0].SessionID)
	assert.False(t, got[0].RequestedAt.IsZero())
	assert.Len(t, f.audit.OfType(audit.EventTypeCallbackScheduled), 1)
}

func TestScheduleCallback_StoreFailureApologises(t *testing.T) {
	f := newFixture(t, true)
	d := New(Deps{Remover: f.cp, Callbacks: failingScheduler{}})
	d.Attach(f.session, telephony.Participant{Identity: identity})

	assert.Equal(t, apology, d.Invoke(context.Background(), ScheduleCallback, nil))
}

func TestScheduleCallback_NoStoreStillSucceeds(t *testing.T) {
	f := newFixture(t, true)
	d := New(Deps{Remover: f.cp})
	d.Attach(f.session, telephony.Participant{Identity: identity})

	assert.Equal(t, "Callback scheduled successfully", d.Invoke(context.Background(), ScheduleCallback, nil))
}

func TestTransferToHuman_Enqueues(t *testing.T) {
	f := newFixture(t, true)

	out := f.d.Invoke(context.Background(), TransferToHuman, map[string]string{"reason": "billing question"})
	assert.Contains(t, out, "Transfer to human requested")

	r, err := f.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "billing question", r.Reason)
	assert.Equal(t, identity, r.Identity)
	assert.Equal(t, "+15551234567", r.PhoneNumber)
	assert.Empty(t, f.cp.Removed(), "transfer does not hang up")
}

func TestInvoke_RecoversPanics(t *testing.T) {
	f := newFixture(t, true)
	d := New(Deps{Remover: panicRemover{}})
	d.Attach(f.session, telephony.Participant{Identity: identity})

	assert.Equal(t, apology, d.Invoke(context.Background(), EndCall, nil))
}

func TestInvoke_UnknownCommand(t *testing.T) {
	f := newFixture(t, true)
	assert.Contains(t, f.d.Invoke(context.Background(), "launch_rocket", nil), "don't know")
}
