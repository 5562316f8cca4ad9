package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"outbound-caller/internal/actions"
	"outbound-caller/internal/audit"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/telephony"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("outbound: session not found")
	ErrShuttingDown = errors.New("outbound: manager is shutting down")
)

// StartRequest asks the manager to dial a number. Empty TrunkID falls back
// to the configured outbound trunk; empty RoomID gets a fresh room.
type StartRequest struct {
	PhoneNumber string
	TrunkID     string
	RoomID      string
	Timeout     time.Duration

	ActorUserID string
	ActorRole   string
}

// Started identifies a session that was accepted and is now running.
type Started struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room"`
	Identity  string `json:"identity"`
}

// View is a session's current state plus its outcome once finished.
type View struct {
	calls.Snapshot
	Outcome *Outcome `json:"outcome,omitempty"`
}

type ManagerRecorder interface {
	SessionStarted()
	SessionFinished()
}

type ManagerConfig struct {
	DefaultTrunkID string
	AgentName      string

	// Agents starts the voice pipeline in the room. Optional.
	Agents telephony.AgentDispatcher
	// Actions builds each session's dispatcher.
	Actions actions.Deps

	// Retention is how long a finished session stays addressable by id.
	// Zero means DefaultRetention.
	Retention time.Duration

	Audit   *audit.Service
	Metrics ManagerRecorder
	Log     *slog.Logger
}

const DefaultRetention = 15 * time.Minute

// Manager runs sessions in the background. A finished session stays
// addressable by id for the configured retention, then only its audit trail
// remains.
type Manager struct {
	orch *Orchestrator
	cfg  ManagerConfig
	log  *slog.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	sessions map[string]*entry
}

type entry struct {
	session    *calls.Session
	dispatcher *actions.Dispatcher

	mu      sync.Mutex
	outcome *Outcome
}

func NewManager(orch *Orchestrator, cfg ManagerConfig) *Manager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		orch:     orch,
		cfg:      cfg,
		log:      log.With("component", "session_manager"),
		root:     root,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// NewRoomName returns a fresh "call-<8 hex>" room name.
func NewRoomName() string {
	return "call-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Start validates and reserves the session synchronously, dispatches the
// voice agent, then runs the call in the background. Validation errors,
// ErrSessionActive and agent dispatch failures are returned to the caller.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Started, error) {
	trunk := strings.TrimSpace(req.TrunkID)
	if trunk == "" {
		trunk = m.cfg.DefaultTrunkID
	}
	room := strings.TrimSpace(req.RoomID)
	if room == "" {
		room = NewRoomName()
	}

	s, err := calls.Prepare(calls.DialRequest{PhoneNumber: req.PhoneNumber, TrunkID: trunk, RoomID: room, Timeout: req.Timeout})
	if err != nil {
		return Started{}, err
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Started{}, ErrShuttingDown
	}

	if err := m.orch.Reserve(ctx, s); err != nil {
		return Started{}, err
	}

	log := m.log.With("session_id", s.ID, "room", s.RoomID, "identity", s.Identity)

	if m.cfg.Agents != nil {
		meta := JobMetadata{PhoneNumber: s.PhoneNumber, TrunkID: s.TrunkID}
		id, err := m.cfg.Agents.DispatchAgent(ctx, telephony.AgentDispatchRequest{
			AgentName: m.cfg.AgentName,
			RoomID:    s.RoomID,
			Metadata:  meta.Encode(),
		})
		if err != nil {
			m.orch.release(ctx, s, log)
			return Started{}, &calls.ProviderError{Op: "dispatch agent", Msg: telephony.ErrorMessage(err), Err: err}
		}
		log.Info("agent dispatched", "agent_name", m.cfg.AgentName, "dispatch_id", id)
	}

	e := &entry{session: s, dispatcher: actions.New(m.withSessionLogger(s))}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.orch.release(ctx, s, log)
		return Started{}, ErrShuttingDown
	}
	m.sessions[s.ID] = e
	m.wg.Add(1)
	m.mu.Unlock()

	if m.cfg.Audit != nil {
		sub := audit.Subject{SessionID: s.ID, RoomID: s.RoomID, Identity: s.Identity}
		if err := m.cfg.Audit.LogDispatch(ctx, sub, req.ActorUserID, req.ActorRole); err != nil {
			log.Warn("audit dispatch failed", "err", err)
		}
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionStarted()
	}
	go m.run(e, req.Timeout)

	return Started{SessionID: s.ID, RoomID: s.RoomID, Identity: s.Identity}, nil
}

func (m *Manager) withSessionLogger(s *calls.Session) actions.Deps {
	deps := m.cfg.Actions
	log := deps.Log
	if log == nil {
		log = m.log
	}
	deps.Log = log.With("session_id", s.ID, "room", s.RoomID)
	return deps
}

func (m *Manager) run(e *entry, timeout time.Duration) {
	defer m.wg.Done()
	defer func() {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionFinished()
		}
	}()

	out := m.orch.Execute(m.root, e.session, timeout, e.dispatcher)

	e.mu.Lock()
	e.outcome = &out
	e.mu.Unlock()

	id := e.session.ID
	time.AfterFunc(m.cfg.Retention, func() { m.forget(id) })
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Get(id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	v := View{Snapshot: e.session.Snapshot()}
	e.mu.Lock()
	if e.outcome != nil {
		out := *e.outcome
		v.Outcome = &out
	}
	e.mu.Unlock()
	return v, nil
}

// Dispatcher returns the session's agent command dispatcher.
func (m *Manager) Dispatcher(id string) (*actions.Dispatcher, *calls.Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return e.dispatcher, e.session, nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Shutdown stops accepting sessions, cancels running ones and waits for them
// to record their outcome, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbound: shutdown: %w", ctx.Err())
	}
}
