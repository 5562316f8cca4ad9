package handoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, Request{ID: "a"})
	_ = q.Enqueue(ctx, Request{ID: "b"})

	for _, want := range []string{"a", "b"} {
		r, err := q.Dequeue(ctx, time.Second)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if r.ID != want {
			t.Fatalf("expected %s, got %s", want, r.ID)
		}
	}

	if _, err := q.Dequeue(ctx, 10*time.Millisecond); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestMemoryQueue_DequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(context.Background(), Request{ID: "late"})
	}()
	r, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || r.ID != "late" {
		t.Fatalf("unexpected %+v %v", r, err)
	}
}

func TestRedisQueue_NilClient(t *testing.T) {
	q := NewRedisQueue(nil, "")
	if q.key != DefaultQueueKey {
		t.Fatalf("expected default key, got %q", q.key)
	}
	if err := q.Enqueue(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
}
