package callbacks

import (
	"context"
	"sync"
)

// MemoryRepo keeps intents in process memory. Used when no database is
// configured and in tests.
type MemoryRepo struct {
	mu      sync.Mutex
	intents []Intent
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Save(_ context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
	return nil
}

func (r *MemoryRepo) ListByPhone(_ context.Context, phone string) ([]Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Intent
	for _, in := range r.intents {
		if in.PhoneNumber == phone {
			out = append(out, in)
		}
	}
	return out, nil
}

func (r *MemoryRepo) All() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}
