package outbound

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"outbound-caller/internal/audit"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgents struct {
	mu   sync.Mutex
	reqs []telephony.AgentDispatchRequest
	err  error
}

func (f *fakeAgents) DispatchAgent(_ context.Context, req telephony.AgentDispatchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return "AD_1", nil
}

func newManager(h *harness, agents *fakeAgents) *Manager {
	cfg := ManagerConfig{
		DefaultTrunkID: "ST_default",
		AgentName:      "outbound-caller",
		Audit:          audit.NewService(h.audit),
	}
	if agents != nil {
		cfg.Agents = agents
	}
	return NewManager(h.orch, cfg)
}

func TestManager_StartRunsSessionInBackground(t *testing.T) {
	h := newHarness()
	h.answerOnDial()
	h.cp.BeforeList = func(roomID string, n int) {
		if n == 2 {
			h.cp.SetAttribute(roomID, testIdentity, telephony.AttrCallStatus, "hangup")
		}
	}
	agents := &fakeAgents{}
	m := newManager(h, agents)

	st, err := m.Start(context.Background(), StartRequest{PhoneNumber: "15551234567", ActorUserID: "u1", ActorRole: "dispatcher"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^call-[0-9a-f]{8}$`), st.RoomID)
	assert.Equal(t, testIdentity, st.Identity)

	require.Eventually(t, func() bool {
		v, err := m.Get(st.SessionID)
		return err == nil && v.Outcome != nil
	}, 2*time.Second, 5*time.Millisecond)

	v, err := m.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, ResultEnded, v.Outcome.Result)
	assert.Equal(t, calls.StatusHangup, v.Status)

	require.Len(t, agents.reqs, 1)
	assert.Equal(t, "outbound-caller", agents.reqs[0].AgentName)
	meta, err := ParseJobMetadata(agents.reqs[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, JobMetadata{PhoneNumber: testPhone, TrunkID: "ST_default"}, meta)
	assert.Equal(t, "ST_default", h.cp.Created()[0].TrunkID)

	dispatched := h.audit.OfType(audit.EventTypeDispatched)
	require.Len(t, dispatched, 1)
	assert.Equal(t, "u1", dispatched[0].ActorUserID)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_SynchronousErrors(t *testing.T) {
	h := newHarness()
	agents := &fakeAgents{}
	m := newManager(h, agents)
	defer m.Shutdown(context.Background())

	_, err := m.Start(context.Background(), StartRequest{PhoneNumber: ""})
	var verr *calls.ValidationError
	assert.True(t, errors.As(err, &verr))

	first, err := m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, RoomID: "R1", Timeout: 5 * time.Second})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, RoomID: "R1"})
	assert.ErrorIs(t, err, calls.ErrSessionActive)

	_, err = m.Get(first.SessionID)
	assert.NoError(t, err)
	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_AgentDispatchFailureReleasesLease(t *testing.T) {
	h := newHarness()
	agents := &fakeAgents{err: errors.New("no agent workers")}
	m := newManager(h, agents)
	defer m.Shutdown(context.Background())

	_, err := m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, RoomID: "R1"})
	var perr *calls.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Empty(t, h.cp.Created())

	agents.mu.Lock()
	agents.err = nil
	agents.mu.Unlock()
	_, err = m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, RoomID: "R1", Timeout: 5 * time.Second})
	assert.NoError(t, err)
}

func TestManager_ShutdownWaitsForSessions(t *testing.T) {
	h := newHarness()
	m := newManager(h, nil)

	st, err := m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	v, err := m.Get(st.SessionID)
	require.NoError(t, err)
	require.NotNil(t, v.Outcome, "outcome is recorded before Shutdown returns")
	assert.Equal(t, ResultError, v.Outcome.Result)

	_, err = m.Start(context.Background(), StartRequest{PhoneNumber: "+15550000000"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestManager_ForgetsFinishedSessionsAfterRetention(t *testing.T) {
	h := newHarness()
	m := NewManager(h.orch, ManagerConfig{Retention: 30 * time.Millisecond, Audit: audit.NewService(h.audit)})
	defer m.Shutdown(context.Background())

	var ids []string
	for i := 0; i < 20; i++ {
		st, err := m.Start(context.Background(), StartRequest{PhoneNumber: testPhone, Timeout: 10 * time.Millisecond})
		require.NoError(t, err)
		ids = append(ids, st.SessionID)
	}

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.sessions) == 0
	}, 2*time.Second, 5*time.Millisecond)

	for _, id := range ids {
		_, err := m.Get(id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Len(t, h.audit.OfType(audit.EventTypeOutcome), 20, "outcomes outlive the session")
}

func TestManager_DefaultRetention(t *testing.T) {
	m := NewManager(newHarness().orch, ManagerConfig{})
	defer m.Shutdown(context.Background())
	assert.Equal(t, DefaultRetention, m.cfg.Retention)
}
