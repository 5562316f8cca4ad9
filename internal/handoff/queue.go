package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list human agents' tooling consumes.
const DefaultQueueKey = "outcall:handoff"

var ErrEmpty = errors.New("handoff: queue is empty")

// Request asks a human to take over a live call. The call itself is not
// transferred by enqueuing.
type Request struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	RoomID      string    `json:"room"`
	Identity    string    `json:"identity"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, r Request) error
	// Dequeue waits up to wait for a request; ErrEmpty when none arrived.
	Dequeue(ctx context.Context, wait time.Duration) (Request, error)
}

// RedisQueue is a FIFO list: LPUSH on enqueue, BRPOP on dequeue.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, r Request) error {
	if q.rdb == nil {
		return errors.New("handoff: redis client is nil")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("handoff: enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (Request, error) {
	if q.rdb == nil {
		return Request{}, errors.New("handoff: redis client is nil")
	}
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Request{}, ErrEmpty
	}
	if err != nil {
		return Request{}, fmt.Errorf("handoff: dequeue: %w", err)
	}
	// BRPOP replies [key, value]
	var r Request
	if err := json.Unmarshal([]byte(res[1]), &r); err != nil {
		return Request{}, fmt.Errorf("handoff: decode: %w", err)
	}
	return r, nil
}

type MemoryQueue struct {
	mu    sync.Mutex
	items []Request
	ready chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, r Request) error {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (Request, error) {
	deadline := time.After(wait)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		case <-deadline:
			return Request{}, ErrEmpty
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
