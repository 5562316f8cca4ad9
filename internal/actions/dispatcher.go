package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"outbound-caller/internal/audit"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/callbacks"
	"outbound-caller/internal/handoff"
	"outbound-caller/internal/telephony"
)

const DefaultVoicemailGrace = time.Second

// ParticipantRemover is the only mutation the dispatcher makes on a room.
type ParticipantRemover interface {
	RemoveParticipant(ctx context.Context, roomID, identity string) error
}

type CallbackScheduler interface {
	Schedule(ctx context.Context, in callbacks.Intent) (callbacks.Intent, error)
}

type Recorder interface {
	Action(name string)
}

// Deps are the dispatcher's collaborators. Only Remover is required;
// without Callbacks or Handoff the request is logged and reported as done.
type Deps struct {
	Remover   ParticipantRemover
	Callbacks CallbackScheduler
	Handoff   handoff.Queue
	Audit     *audit.Service
	Metrics   Recorder

	VoicemailGrace time.Duration
	Log            *slog.Logger
}

// Dispatcher exposes the agent's mid-call commands. Invoke never fails:
// errors and panics become a short apology the agent can say aloud.
type Dispatcher struct {
	remover   ParticipantRemover
	callbacks CallbackScheduler
	handoff   handoff.Queue
	audit     *audit.Service
	metrics   Recorder
	grace     time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	session     *calls.Session
	participant *telephony.Participant

	endMu   sync.Mutex
	removed bool

	endOnce sync.Once
	endCh   chan struct{}
}

func New(deps Deps) *Dispatcher {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	grace := deps.VoicemailGrace
	if grace <= 0 {
		grace = DefaultVoicemailGrace
	}
	return &Dispatcher{
		remover:   deps.Remover,
		callbacks: deps.Callbacks,
		handoff:   deps.Handoff,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		grace:     grace,
		log:       log.With("component", "actions"),
		now:       time.Now,
		endCh:     make(chan struct{}),
	}
}

// Attach binds the dispatcher to a joined participant. Until then every
// command is a warning no-op.
func (d *Dispatcher) Attach(s *calls.Session, p telephony.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = s
	d.participant = &p
}

// EndRequested is closed after end_call removed the participant.
func (d *Dispatcher) EndRequested() <-chan struct{} { return d.endCh }

func (d *Dispatcher) requestEnd() {
	d.endOnce.Do(func() { close(d.endCh) })
}

// Commands lists the command table in a stable order.
func (d *Dispatcher) Commands() []Spec {
	out := make([]Spec, 0, len(table))
	for _, c := range table {
		out = append(out, c.Spec)
	}
	return out
}

type target struct {
	session     *calls.Session
	participant telephony.Participant
}

func (t target) subject() audit.Subject {
	return audit.Subject{SessionID: t.session.ID, RoomID: t.session.RoomID, Identity: t.participant.Identity}
}

func (d *Dispatcher) target() (target, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil || d.participant == nil {
		return target{}, false
	}
	return target{session: d.session, participant: *d.participant}, true
}

var noParticipant = map[string]string{
	EndCall:           "There is no active call to end.",
	DetectedVoicemail: "There is no active call, so no voicemail was recorded.",
	ScheduleCallback:  "There is no active call, so no callback was scheduled.",
	TransferToHuman:   "There is no active call to transfer.",
}

// Invoke runs the named command with args and returns the text to relay.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]string) (result string) {
	log := d.log.With("action", name)

	var cmd *command
	for i := range table {
		if table[i].Name == name {
			cmd = &table[i]
			break
		}
	}
	if cmd == nil {
		log.Warn("unknown action")
		return fmt.Sprintf("Sorry, I don't know how to %s.", name)
	}
	if d.metrics != nil {
		d.metrics.Action(name)
	}

	t, ok := d.target()
	if !ok {
		log.Warn("action invoked without a participant")
		return noParticipant[name]
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("action panicked", "session_id", t.session.ID, "panic", p)
			result = apology
		}
	}()

	out, err := cmd.run(ctx, d, t, args)
	if err != nil {
		log.Error("action failed", "session_id", t.session.ID, "err", err)
		return apology
	}
	return out
}

const apology = "I'm sorry, something went wrong. Please try again."
