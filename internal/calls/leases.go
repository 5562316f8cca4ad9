package calls

import (
	"context"
	"sync"
	"time"

	"outbound-caller/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Leases guarantees at most one live session per (room, identity).
type Leases interface {
	// Acquire returns ErrSessionActive when another session holds the pair.
	Acquire(ctx context.Context, s *Session) error
	// Renew extends the holder's lease. ErrLeaseLost means s no longer holds
	// the pair.
	Renew(ctx context.Context, s *Session) error
	Release(ctx context.Context, s *Session) error
}

func leaseKey(roomID, identity string) string {
	return "outcall:lease:" + roomID + ":" + identity
}

type MemoryLeases struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryLeases() *MemoryLeases {
	return &MemoryLeases{owners: make(map[string]string)}
}

func (l *MemoryLeases) Acquire(_ context.Context, s *Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := leaseKey(s.RoomID, s.Identity)
	if owner, ok := l.owners[k]; ok && owner != s.ID {
		return ErrSessionActive
	}
	l.owners[k] = s.ID
	return nil
}

// Renew only checks ownership; memory leases never expire.
func (l *MemoryLeases) Renew(_ context.Context, s *Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[leaseKey(s.RoomID, s.Identity)] != s.ID {
		return ErrLeaseLost
	}
	return nil
}

func (l *MemoryLeases) Release(_ context.Context, s *Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := leaseKey(s.RoomID, s.Identity)
	if l.owners[k] == s.ID {
		delete(l.owners, k)
	}
	return nil
}

// RedisLeases shares leases across API instances. TTL bounds how long a
// crashed instance keeps a pair reserved; live sessions renew well before it
// runs out.
type RedisLeases struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLeases(rdb *redis.Client, ttl time.Duration) *RedisLeases {
	return &RedisLeases{rdb: rdb, ttl: ttl}
}

func (l *RedisLeases) Acquire(ctx context.Context, s *Session) error {
	ok, err := utils.AcquireLease(ctx, l.rdb, leaseKey(s.RoomID, s.Identity), s.ID, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionActive
	}
	return nil
}

func (l *RedisLeases) Renew(ctx context.Context, s *Session) error {
	ok, err := utils.RenewLease(ctx, l.rdb, leaseKey(s.RoomID, s.Identity), s.ID, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// RenewEvery is the renewal period that keeps a live lease from expiring.
func (l *RedisLeases) RenewEvery() time.Duration {
	return l.ttl / 3
}

func (l *RedisLeases) Release(ctx context.Context, s *Session) error {
	return utils.ReleaseLease(ctx, l.rdb, leaseKey(s.RoomID, s.Identity), s.ID)
}
