package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/repositories/memory"
)

func TestRateLimiter_MinuteWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(memory.NewRateWindowRepository(), clock.Now)
	ctx := context.Background()

	require.NoError(t, l.RecordAndCheck(ctx, "otp:phone:"+testPhone, 1, 10))

	err := l.RecordAndCheck(ctx, "otp:phone:"+testPhone, 1, 10)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	// часы стоят на 09:30:15, окно кончается в 09:31:00
	assert.Equal(t, 45*time.Second, rl.RetryAfter)
	assert.Equal(t, 45, rl.RetryAfterSeconds())

	clock.Advance(45 * time.Second)
	require.NoError(t, l.RecordAndCheck(ctx, "otp:phone:"+testPhone, 1, 10))
}

func TestRateLimiter_DayWindowResetsAtUTCMidnight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 23, 58, 0, 0, time.UTC)}
	l := NewRateLimiter(memory.NewRateWindowRepository(), clock.Now)
	ctx := context.Background()

	require.NoError(t, l.RecordAndCheck(ctx, "k", 0, 2))
	require.NoError(t, l.RecordAndCheck(ctx, "k", 0, 2))

	err := l.RecordAndCheck(ctx, "k", 0, 2)
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 2*time.Minute, rl.RetryAfter)

	clock.Advance(2 * time.Minute)
	assert.NoError(t, l.RecordAndCheck(ctx, "k", 0, 2))
}

func TestRateLimiter_BlockedCallsDoNotConsumeDayBudget(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(memory.NewRateWindowRepository(), clock.Now)
	ctx := context.Background()

	require.NoError(t, l.RecordAndCheck(ctx, "k", 1, 2))
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, l.RecordAndCheck(ctx, "k", 1, 2), ErrRateLimitExceeded)
	}
	clock.Advance(time.Minute)
	assert.NoError(t, l.RecordAndCheck(ctx, "k", 1, 2), "day budget must still have one unit left")
}

func TestRateLimiter_DisabledLimits(t *testing.T) {
	l := NewRateLimiter(memory.NewRateWindowRepository(), newFakeClock().Now)
	for i := 0; i < 20; i++ {
		require.NoError(t, l.RecordAndCheck(context.Background(), "k", 0, 0))
	}
}
