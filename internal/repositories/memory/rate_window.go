package memory

import (
	"context"
	"sync"
	"time"

	"samadhaan/internal/models"
)

type windowKey struct {
	scope  string
	start  int64
	length time.Duration
}

func keyOf(scope string, w models.WindowLimit) windowKey {
	return windowKey{scope: scope, start: w.Start.UnixNano(), length: w.Length}
}

type RateWindowRepository struct {
	mu     sync.Mutex
	counts map[windowKey]int
}

func NewRateWindowRepository() *RateWindowRepository {
	return &RateWindowRepository{counts: map[windowKey]int{}}
}

func (r *RateWindowRepository) Consume(_ context.Context, scopeKey string, windows []models.WindowLimit) (*models.WindowLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range windows {
		w := windows[i]
		if r.counts[keyOf(scopeKey, w)] >= w.Limit {
			return &w, nil
		}
	}
	for _, w := range windows {
		r.counts[keyOf(scopeKey, w)]++
	}
	return nil, nil
}

func (r *RateWindowRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.counts {
		if k.start < cutoff.UnixNano() {
			delete(r.counts, k)
			n++
		}
	}
	return n, nil
}
