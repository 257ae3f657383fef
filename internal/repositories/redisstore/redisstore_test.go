package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/repositories/repotest"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOTPChallengeRepository(t *testing.T) {
	repotest.RunOTPChallengeSuite(t, func(t *testing.T) repositories.OTPChallengeRepository {
		_, client := newClient(t)
		return NewOTPChallengeRepository(client, "test:")
	})
}

func TestRateWindowRepository(t *testing.T) {
	repotest.RunRateWindowSuite(t, func(t *testing.T) repositories.RateWindowRepository {
		_, client := newClient(t)
		return NewRateWindowRepository(client, "test:")
	})
}

func TestSessionRepository(t *testing.T) {
	repotest.RunSessionSuite(t,
		func(t *testing.T) repositories.SessionRepository {
			_, client := newClient(t)
			return NewSessionRepository(client, "test:")
		},
		func(*testing.T) int64 { return 42 },
	)
}

func TestOTPChallenge_KeyExpiresAfterRetention(t *testing.T) {
	mr, client := newClient(t)
	repo := NewOTPChallengeRepository(client, "test:")
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &models.OTPChallenge{
		Handle: "abc", Phone: "+15550001111", CodeHash: "x",
		ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	}))
	assert.True(t, mr.Exists("test:otp:abc"))

	mr.FastForward(2 * time.Hour)
	_, err := repo.IncrementAttempts(ctx, "abc")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUnavailableWrapsSentinel(t *testing.T) {
	mr, client := newClient(t)
	repo := NewOTPChallengeRepository(client, "test:")
	mr.Close()

	_, err := repo.IncrementAttempts(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
