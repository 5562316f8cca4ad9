package telephony

import (
	"context"
	"sync"
)

// MemoryJoinHub is an in-process JoinEvents/JoinPublisher. It is used when
// webhooks and call sessions live in the same process, and in tests.
type MemoryJoinHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*hubSub
}

func NewMemoryJoinHub() *MemoryJoinHub {
	return &MemoryJoinHub{subs: make(map[int]*hubSub)}
}

type hubSub struct {
	hub      *MemoryJoinHub
	id       int
	roomID   string
	identity string
	ch       chan Participant
	once     sync.Once
}

func (s *hubSub) C() <-chan Participant { return s.ch }

func (s *hubSub) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
	return nil
}

func (h *MemoryJoinHub) SubscribeJoins(ctx context.Context, roomID, identity string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &hubSub{hub: h, id: h.nextID, roomID: roomID, identity: identity, ch: make(chan Participant, 1)}
	h.subs[s.id] = s
	return s, nil
}

// PublishJoin never blocks: a subscriber that already has a pending
// notification does not need a second one.
func (h *MemoryJoinHub) PublishJoin(_ context.Context, roomID string, p Participant) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.roomID != roomID || s.identity != p.Identity {
			continue
		}
		select {
		case s.ch <- p:
		default:
		}
	}
	return nil
}

// Subscribers reports the number of open subscriptions.
func (h *MemoryJoinHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
