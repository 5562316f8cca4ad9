package calls

import "sync"

type countingRecorder struct {
	mu           sync.Mutex
	dialOK       int
	dialFailures int
	tickErrors   int
}

func (r *countingRecorder) DialSubmitted(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.dialOK++
	} else {
		r.dialFailures++
	}
}

func (r *countingRecorder) TickError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickErrors++
}

func (r *countingRecorder) ticks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickErrors
}
