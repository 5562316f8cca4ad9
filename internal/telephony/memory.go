package telephony

import (
	"context"
	"sync"
)

// MemoryControlPlane is an in-memory ControlPlane and JoinEvents used by
// tests. Rosters are edited with Join, Leave and SetAttribute; joins are
// published on the embedded hub.
type MemoryControlPlane struct {
	Hub *MemoryJoinHub

	mu      sync.Mutex
	rooms   map[string][]Participant
	created []CreateCallRequest
	removed []string
	lists   int
	subs    int

	CreateErr    error
	ListErr      error
	RemoveErr    error
	SubscribeErr error

	// OnCreate, when set, runs after a call participant is recorded.
	OnCreate func(req CreateCallRequest)
	// BeforeList runs before every roster read with the 1-based read count.
	// It is called without holding the lock, so it may call Join or Leave.
	BeforeList func(roomID string, n int)
}

func NewMemoryControlPlane() *MemoryControlPlane {
	return &MemoryControlPlane{Hub: NewMemoryJoinHub(), rooms: make(map[string][]Participant)}
}

func (m *MemoryControlPlane) CreateCallParticipant(_ context.Context, req CreateCallRequest) (CallAck, error) {
	m.mu.Lock()
	if m.CreateErr != nil {
		err := m.CreateErr
		m.mu.Unlock()
		return CallAck{}, err
	}
	m.created = append(m.created, req)
	if _, ok := m.rooms[req.RoomID]; !ok {
		m.rooms[req.RoomID] = nil
	}
	hook := m.OnCreate
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return CallAck{ParticipantID: "PA_" + req.Identity, SIPCallID: "SCL_" + req.Identity}, nil
}

func (m *MemoryControlPlane) ListParticipants(_ context.Context, roomID string) ([]Participant, error) {
	m.mu.Lock()
	m.lists++
	n := m.lists
	hook := m.BeforeList
	m.mu.Unlock()

	if hook != nil {
		hook(roomID, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	ps, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := make([]Participant, len(ps))
	for i, p := range ps {
		out[i] = cloneParticipant(p)
	}
	return out, nil
}

func (m *MemoryControlPlane) RemoveParticipant(_ context.Context, roomID, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return removeError(m.RemoveErr)
	}
	m.removed = append(m.removed, identity)
	m.rooms[roomID] = without(m.rooms[roomID], identity)
	return nil
}

func (m *MemoryControlPlane) SubscribeJoins(ctx context.Context, roomID, identity string) (Subscription, error) {
	m.mu.Lock()
	m.subs++
	err := m.SubscribeErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Hub.SubscribeJoins(ctx, roomID, identity)
}

// Join adds p to the room roster and publishes the join.
func (m *MemoryControlPlane) Join(roomID string, p Participant) {
	m.mu.Lock()
	m.rooms[roomID] = append(without(m.rooms[roomID], p.Identity), cloneParticipant(p))
	m.mu.Unlock()
	_ = m.Hub.PublishJoin(context.Background(), roomID, p)
}

func (m *MemoryControlPlane) Leave(roomID, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = without(m.rooms[roomID], identity)
}

// DeleteRoom makes subsequent roster reads fail with ErrRoomNotFound.
func (m *MemoryControlPlane) DeleteRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

// SetAttribute sets one attribute on a listed participant; an empty value
// removes it.
func (m *MemoryControlPlane) SetAttribute(roomID, identity, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.rooms[roomID] {
		if p.Identity != identity {
			continue
		}
		if p.Attributes == nil {
			p.Attributes = map[string]string{}
		}
		if value == "" {
			delete(p.Attributes, key)
		} else {
			p.Attributes[key] = value
		}
		m.rooms[roomID][i] = p
	}
}

func (m *MemoryControlPlane) Created() []CreateCallRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CreateCallRequest(nil), m.created...)
}

func (m *MemoryControlPlane) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

func (m *MemoryControlPlane) Subscribes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs
}

func (m *MemoryControlPlane) Lists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func (m *MemoryControlPlane) SetListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListErr = err
}

func without(ps []Participant, identity string) []Participant {
	out := ps[:0:0]
	for _, p := range ps {
		if p.Identity != identity {
			out = append(out, p)
		}
	}
	return out
}

func cloneParticipant(p Participant) Participant {
	if p.Attributes != nil {
		attrs := make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			attrs[k] = v
		}
		p.Attributes = attrs
	}
	return p
}
