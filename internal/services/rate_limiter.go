package services

import (
	"context"
	"time"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

// RateLimiter — фиксированные окна (минута и сутки, UTC) поверх RateWindowRepository.
type RateLimiter struct {
	repo repositories.RateWindowRepository
	now  func() time.Time
}

func NewRateLimiter(repo repositories.RateWindowRepository, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{repo: repo, now: now}
}

// RecordAndCheck consumes one unit from both windows of scopeKey, or from
// none of them when either is already full. A limit <= 0 disables its window.
func (l *RateLimiter) RecordAndCheck(ctx context.Context, scopeKey string, perMinute, perDay int) error {
	now := l.now().UTC()

	var windows []models.WindowLimit
	if perMinute > 0 {
		windows = append(windows, models.WindowLimit{
			Start:  now.Truncate(time.Minute),
			Limit:  perMinute,
			Length: time.Minute,
		})
	}
	if perDay > 0 {
		windows = append(windows, models.WindowLimit{
			Start:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
			Limit:  perDay,
			Length: 24 * time.Hour,
		})
	}
	if len(windows) == 0 {
		return nil
	}

	blocked, err := l.repo.Consume(ctx, scopeKey, windows)
	if err != nil {
		return dependency("rate window consume", err)
	}
	if blocked != nil {
		return &RateLimitError{Scope: scopeKey, RetryAfter: blocked.End().Sub(now)}
	}
	return nil
}
