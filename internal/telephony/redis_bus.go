package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const joinChannelPrefix = "outcall:joins:"

// RedisJoinBus carries join notifications between the webhook receiver and
// call sessions running in other processes.
type RedisJoinBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisJoinBus(rdb *redis.Client, log *slog.Logger) *RedisJoinBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisJoinBus{rdb: rdb, log: log.With("component", "join_bus")}
}

func joinChannel(roomID string) string { return joinChannelPrefix + roomID }

func (b *RedisJoinBus) PublishJoin(ctx context.Context, roomID string, p Participant) error {
	if b.rdb == nil {
		return errors.New("telephony: redis client is nil")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, joinChannel(roomID), raw).Err(); err != nil {
		return fmt.Errorf("telephony: publish join: %w", err)
	}
	return nil
}

// SubscribeJoins returns once Redis has confirmed the subscription, so a
// publish issued after this call returns is never missed.
func (b *RedisJoinBus) SubscribeJoins(ctx context.Context, roomID, identity string) (Subscription, error) {
	if b.rdb == nil {
		return nil, errors.New("telephony: redis client is nil")
	}
	ps := b.rdb.Subscribe(ctx, joinChannel(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("telephony: subscribe joins: %w", err)
	}

	s := &redisSub{ps: ps, ch: make(chan Participant, 1), done: make(chan struct{})}
	go s.pump(identity, b.log)
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Participant
	done chan struct{}
	once sync.Once
}

func (s *redisSub) C() <-chan Participant { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSub) pump(identity string, log *slog.Logger) {
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var p Participant
			if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
				log.Warn("join event decode failed", "channel", m.Channel, "err", err)
				continue
			}
			if p.Identity != identity {
				continue
			}
			select {
			case s.ch <- p:
			default:
			}
		}
	}
}
