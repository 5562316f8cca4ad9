package outbound

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outbound-caller/internal/actions"
	"outbound-caller/internal/audit"
	"outbound-caller/internal/calls"
)

// Result is the coarse outcome of a session.
type Result string

const (
	ResultEnded   Result = "ENDED"
	ResultTimeout Result = "TIMEOUT"
	ResultError   Result = "ERROR"
)

// ReasonEndCall marks sessions ended by the agent's end_call command.
const ReasonEndCall calls.TerminationReason = "END_CALL"

// Outcome is reported once per session.
type Outcome struct {
	Result    Result                  `json:"result"`
	Status    calls.Status            `json:"status"`
	Reason    calls.TerminationReason `json:"reason,omitempty"`
	SessionID string                  `json:"session_id,omitempty"`
	RoomID    string                  `json:"room,omitempty"`
	Identity  string                  `json:"identity,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	JoinedAt  *time.Time              `json:"joined_at,omitempty"`
	EndedAt   *time.Time              `json:"ended_at,omitempty"`
	Error     string                  `json:"error,omitempty"`

	Err error `json:"-"`
}

type Recorder interface {
	Joined(wait time.Duration)
	Outcome(result, status string)
}

// Orchestrator runs one session: dial, wait for the callee, then monitor
// until the call ends or the agent hangs up.
type Orchestrator struct {
	Dialer  *calls.Dialer
	Waiter  *calls.JoinWaiter
	Monitor *calls.Monitor
	Leases  calls.Leases

	// LeaseRenewal is how often a running session renews its lease. Zero
	// disables renewal.
	LeaseRenewal time.Duration

	Audit   *audit.Service
	Metrics Recorder
	Log     *slog.Logger
}

// Run validates req and runs the whole session. d may be nil when no agent
// commands are expected.
func (o *Orchestrator) Run(ctx context.Context, req calls.DialRequest, d *actions.Dispatcher) Outcome {
	s, err := calls.Prepare(req)
	if err != nil {
		return Outcome{Result: ResultError, Status: calls.StatusError, CreatedAt: time.Now().UTC(), Error: err.Error(), Err: err}
	}
	if err := o.Reserve(ctx, s); err != nil {
		return o.fail(ctx, s, err)
	}
	return o.Execute(ctx, s, req.Timeout, d)
}

// Reserve takes the (room, identity) lease for s. Execute releases it.
func (o *Orchestrator) Reserve(ctx context.Context, s *calls.Session) error {
	if o.Leases == nil {
		return nil
	}
	return o.Leases.Acquire(ctx, s)
}

// Execute runs a prepared, reserved session to completion.
func (o *Orchestrator) Execute(ctx context.Context, s *calls.Session, timeout time.Duration, d *actions.Dispatcher) Outcome {
	log := o.logger().With("session_id", s.ID, "room", s.RoomID, "identity", s.Identity)
	defer o.release(ctx, s, log)
	stopRenew := o.keepLease(ctx, s, log)
	defer stopRenew()

	if _, err := o.Dialer.Submit(ctx, s, timeout); err != nil {
		return o.fail(ctx, s, err)
	}

	dialedAt := time.Now()
	p, err := o.Waiter.AwaitJoin(ctx, s.RoomID, s.Identity, timeout)
	if err != nil {
		var terr *calls.JoinTimeoutError
		if errors.As(err, &terr) {
			_ = s.Transition(context.WithoutCancel(ctx), calls.StatusTimeout)
			log.Warn("callee never joined", "timeout", terr.Timeout)
			return o.finish(ctx, s, ResultTimeout, "", err)
		}
		return o.fail(ctx, s, err)
	}

	if err := s.Transition(ctx, calls.StatusActive); err != nil {
		return o.fail(ctx, s, err)
	}
	if o.Metrics != nil {
		o.Metrics.Joined(time.Since(dialedAt))
	}
	log.Info("callee joined", "wait", time.Since(dialedAt))

	var endRequested <-chan struct{}
	if d != nil {
		d.Attach(s, p)
		endRequested = d.EndRequested()
	}

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	done := make(chan calls.TerminationReason, 1)
	go func() { done <- o.Monitor.Run(monCtx, s) }()

	var reason calls.TerminationReason
	select {
	case reason = <-done:
	case <-endRequested:
		stopMonitor()
		if r := <-done; r != calls.ReasonCancelled {
			reason = r
		} else {
			reason = ReasonEndCall
		}
	case <-ctx.Done():
		stopMonitor()
		reason = <-done
	}

	if reason == calls.ReasonCancelled && ctx.Err() != nil {
		log.Warn("session aborted", "err", ctx.Err())
		return o.fail(ctx, s, ctx.Err())
	}

	// the monitor leaves the status alone when it was cancelled or saw the
	// participant leave
	final := calls.StatusTerminated
	if st, ok := reason.Status(); ok {
		final = st
	}
	if !s.Status().Terminal() {
		if err := s.Transition(context.WithoutCancel(ctx), final); err != nil {
			log.Warn("final status not applied", "status", final, "err", err)
		}
	}
	return o.finish(ctx, s, ResultEnded, reason, nil)
}

func (o *Orchestrator) fail(ctx context.Context, s *calls.Session, err error) Outcome {
	if !s.Status().Terminal() {
		_ = s.Transition(context.WithoutCancel(ctx), calls.StatusError)
	}
	return o.finish(ctx, s, ResultError, "", err)
}

func (o *Orchestrator) finish(ctx context.Context, s *calls.Session, result Result, reason calls.TerminationReason, err error) Outcome {
	snap := s.Snapshot()
	out := Outcome{
		Result:    result,
		Status:    snap.Status,
		Reason:    reason,
		SessionID: snap.ID,
		RoomID:    snap.RoomID,
		Identity:  snap.Identity,
		CreatedAt: snap.CreatedAt,
		JoinedAt:  snap.JoinedAt,
		EndedAt:   snap.EndedAt,
		Err:       err,
	}
	if err != nil {
		out.Error = err.Error()
	}

	log := o.logger().With("session_id", s.ID, "room", s.RoomID, "identity", s.Identity)
	if result == ResultEnded {
		log.Info("session finished", "result", result, "status", out.Status, "reason", reason)
	} else {
		log.Error("session failed", "result", result, "status", out.Status, "err", err)
	}

	if o.Metrics != nil {
		o.Metrics.Outcome(string(result), string(out.Status))
	}
	if o.Audit != nil {
		sub := audit.Subject{SessionID: s.ID, RoomID: s.RoomID, Identity: s.Identity}
		details := map[string]string{"status": string(out.Status), "reason": string(reason), "error": out.Error}
		if aerr := o.Audit.LogOutcome(context.WithoutCancel(ctx), sub, string(result), details); aerr != nil {
			log.Warn("audit outcome failed", "err", aerr)
		}
	}
	return out
}

// keepLease renews s's lease until the returned stop func is called.
func (o *Orchestrator) keepLease(ctx context.Context, s *calls.Session, log *slog.Logger) func() {
	if o.Leases == nil || o.LeaseRenewal <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(o.LeaseRenewal)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := o.Leases.Renew(ctx, s); err != nil && ctx.Err() == nil {
					log.Warn("lease renewal failed", "err", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (o *Orchestrator) release(ctx context.Context, s *calls.Session, log *slog.Logger) {
	if o.Leases == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.Leases.Release(rctx, s); err != nil {
		log.Warn("lease release failed", "err", err)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default().With("component", "orchestrator")
	}
	return o.Log.With("component", "orchestrator")
}
