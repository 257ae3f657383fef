package memory

import (
	"context"
	"sync"
	"time"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

type OTPChallengeRepository struct {
	mu      sync.Mutex
	records map[string]models.OTPChallenge
}

func NewOTPChallengeRepository() *OTPChallengeRepository {
	return &OTPChallengeRepository{records: map[string]models.OTPChallenge{}}
}

func (r *OTPChallengeRepository) Create(_ context.Context, ch *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[ch.Handle]; ok {
		return repositories.ErrConflict
	}
	r.records[ch.Handle] = *ch
	return nil
}

func (r *OTPChallengeRepository) IncrementAttempts(_ context.Context, handle string) (*models.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.records[handle]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	ch.Attempts++
	r.records[handle] = ch
	return &ch, nil
}

func (r *OTPChallengeRepository) Delete(_ context.Context, handle string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[handle]; !ok {
		return false, nil
	}
	delete(r.records, handle)
	return true, nil
}

func (r *OTPChallengeRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, ch := range r.records {
		if ch.ExpiresAt.Before(before) {
			delete(r.records, h)
			n++
		}
	}
	return n, nil
}

// Len is used by tests.
func (r *OTPChallengeRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
