// Package repotest is a behavioural test suite shared by every repository
// implementation (memory, Redis, Postgres).
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

var base = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func RunOTPChallengeSuite(t *testing.T, newRepo func(t *testing.T) repositories.OTPChallengeRepository) {
	ctx := context.Background()

	t.Run("IncrementReturnsUpdatedRecord", func(t *testing.T) {
		repo := newRepo(t)
		ch := &models.OTPChallenge{
			Handle:    "h-" + uuid.NewString(),
			Phone:     "+919876543210",
			CodeHash:  "hash",
			ExpiresAt: base.Add(5 * time.Minute),
			CreatedAt: base,
		}
		require.NoError(t, repo.Create(ctx, ch))

		got, err := repo.IncrementAttempts(ctx, ch.Handle)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, ch.Phone, got.Phone)
		assert.Equal(t, ch.CodeHash, got.CodeHash)
		assert.True(t, got.ExpiresAt.Equal(ch.ExpiresAt), "expires_at %v != %v", got.ExpiresAt, ch.ExpiresAt)

		got, err = repo.IncrementAttempts(ctx, ch.Handle)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("IncrementUnknownHandle", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.IncrementAttempts(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("ConcurrentIncrementsAreNotLost", func(t *testing.T) {
		repo := newRepo(t)
		handle := "h-" + uuid.NewString()
		require.NoError(t, repo.Create(ctx, &models.OTPChallenge{
			Handle: handle, Phone: "+15550001111", CodeHash: "x",
			ExpiresAt: base.Add(time.Minute), CreatedAt: base,
		}))

		const n = 20
		var wg sync.WaitGroup
		seen := make(chan int, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ch, err := repo.IncrementAttempts(ctx, handle)
				if err == nil {
					seen <- ch.Attempts
				}
			}()
		}
		wg.Wait()
		close(seen)

		values := map[int]bool{}
		for v := range seen {
			values[v] = true
		}
		assert.Len(t, values, n, "every caller must observe a distinct attempt number")
	})

	t.Run("DeleteIsSingleUse", func(t *testing.T) {
		repo := newRepo(t)
		handle := "h-" + uuid.NewString()
		require.NoError(t, repo.Create(ctx, &models.OTPChallenge{
			Handle: handle, Phone: "+15550001111", CodeHash: "x",
			ExpiresAt: base.Add(time.Minute), CreatedAt: base,
		}))

		deleted, err := repo.Delete(ctx, handle)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, handle)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = repo.IncrementAttempts(ctx, handle)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("DuplicateHandle", func(t *testing.T) {
		repo := newRepo(t)
		ch := &models.OTPChallenge{
			Handle: "h-" + uuid.NewString(), Phone: "+15550001111", CodeHash: "x",
			ExpiresAt: base.Add(time.Minute), CreatedAt: base,
		}
		require.NoError(t, repo.Create(ctx, ch))
		assert.ErrorIs(t, repo.Create(ctx, ch), repositories.ErrConflict)
	})
}

func RunRateWindowSuite(t *testing.T, newRepo func(t *testing.T) repositories.RateWindowRepository) {
	ctx := context.Background()
	minute := models.WindowLimit{Start: base.Truncate(time.Minute), Limit: 2, Length: time.Minute}
	day := models.WindowLimit{Start: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), Limit: 3, Length: 24 * time.Hour}

	t.Run("MinuteLimit", func(t *testing.T) {
		repo := newRepo(t)
		scope := "otp:phone:" + uuid.NewString()
		for i := 0; i < 2; i++ {
			blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{minute, day})
			require.NoError(t, err)
			require.Nil(t, blocked, "call %d", i+1)
		}
		blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{minute, day})
		require.NoError(t, err)
		require.NotNil(t, blocked)
		assert.True(t, blocked.Start.Equal(minute.Start))
	})

	t.Run("BlockedCallDoesNotConsume", func(t *testing.T) {
		repo := newRepo(t)
		scope := "otp:phone:" + uuid.NewString()
		for i := 0; i < 2; i++ {
			_, err := repo.Consume(ctx, scope, []models.WindowLimit{minute, day})
			require.NoError(t, err)
		}
		for i := 0; i < 5; i++ {
			blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{minute, day})
			require.NoError(t, err)
			require.NotNil(t, blocked)
		}

		next := minute
		next.Start = minute.Start.Add(time.Minute)
		blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{next, day})
		require.NoError(t, err)
		require.Nil(t, blocked, "day window holds 2 of 3, one more must pass")

		next.Start = next.Start.Add(time.Minute)
		blocked, err = repo.Consume(ctx, scope, []models.WindowLimit{next, day})
		require.NoError(t, err)
		require.NotNil(t, blocked)
		assert.True(t, blocked.Start.Equal(day.Start))
	})

	t.Run("MidnightWindowsDoNotShareCounter", func(t *testing.T) {
		repo := newRepo(t)
		scope := "otp:phone:" + uuid.NewString()
		midnight := day.Start
		m := models.WindowLimit{Start: midnight, Limit: 2, Length: time.Minute}
		d := models.WindowLimit{Start: midnight, Limit: 10, Length: 24 * time.Hour}
		for i := 0; i < 2; i++ {
			blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{m, d})
			require.NoError(t, err)
			require.Nil(t, blocked, "call %d", i+1)
		}
		blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{m, d})
		require.NoError(t, err)
		require.NotNil(t, blocked)
		assert.Equal(t, time.Minute, blocked.Length)
	})

	t.Run("ScopesAreIndependent", func(t *testing.T) {
		repo := newRepo(t)
		one := models.WindowLimit{Start: minute.Start, Limit: 1, Length: time.Minute}
		a, b := "scope-a-"+uuid.NewString(), "scope-b-"+uuid.NewString()
		blocked, err := repo.Consume(ctx, a, []models.WindowLimit{one})
		require.NoError(t, err)
		require.Nil(t, blocked)
		blocked, err = repo.Consume(ctx, b, []models.WindowLimit{one})
		require.NoError(t, err)
		require.Nil(t, blocked)
	})

	t.Run("ConcurrentConsumersRespectLimit", func(t *testing.T) {
		repo := newRepo(t)
		scope := "otp:phone:" + uuid.NewString()
		limit := models.WindowLimit{Start: minute.Start, Limit: 5, Length: time.Minute}

		const n = 25
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				blocked, err := repo.Consume(ctx, scope, []models.WindowLimit{limit})
				if err == nil && blocked == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 5, granted)
	})
}

// SessionFixture creates the user row a session references, for stores that
// enforce the foreign key. It returns the user id to use.
type SessionFixture func(t *testing.T) int64

func newSession(userID int64, familyID string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		UserID:      userID,
		Phone:       "+919876543210",
		RefreshHash: "rh-" + uuid.NewString(),
		DeviceInfo:  "Pixel 8",
		ExpiresAt:   createdAt.Add(30 * 24 * time.Hour),
		Active:      true,
		CreatedAt:   createdAt,
	}
}

func mintFrom(next **models.Session, at time.Time) repositories.MintFunc {
	return func(old *models.Session) (*models.Session, error) {
		s := newSession(old.UserID, old.FamilyID, at)
		s.DeviceInfo = old.DeviceInfo
		*next = s
		return s, nil
	}
}

func RunSessionSuite(t *testing.T, newRepo func(t *testing.T) repositories.SessionRepository, user SessionFixture) {
	ctx := context.Background()

	t.Run("RotateReplacesSession", func(t *testing.T) {
		repo := newRepo(t)
		uid := user(t)
		s1 := newSession(uid, uuid.NewString(), base)
		require.NoError(t, repo.Create(ctx, s1))

		var s2 *models.Session
		require.NoError(t, repo.Rotate(ctx, s1.RefreshHash, base.Add(time.Hour), mintFrom(&s2, base.Add(time.Hour))))
		require.NotNil(t, s2)
		assert.Equal(t, s1.FamilyID, s2.FamilyID)
		assert.Equal(t, "Pixel 8", s2.DeviceInfo)

		old, err := repo.GetByRefreshHash(ctx, s1.RefreshHash)
		require.NoError(t, err)
		assert.False(t, old.Active)
		require.NotNil(t, old.RevokedAt)
		assert.Equal(t, s2.ID, old.ReplacedBy)

		cur, err := repo.GetByRefreshHash(ctx, s2.RefreshHash)
		require.NoError(t, err)
		assert.True(t, cur.Active)

		var s3 *models.Session
		err = repo.Rotate(ctx, s1.RefreshHash, base.Add(2*time.Hour), mintFrom(&s3, base.Add(2*time.Hour)))
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.Nil(t, s3)
	})

	t.Run("RotateExpired", func(t *testing.T) {
		repo := newRepo(t)
		s := newSession(user(t), uuid.NewString(), base)
		require.NoError(t, repo.Create(ctx, s))

		var next *models.Session
		err := repo.Rotate(ctx, s.RefreshHash, s.ExpiresAt.Add(time.Second), mintFrom(&next, base))
		assert.ErrorIs(t, err, repositories.ErrExpired)
		assert.Nil(t, next)
	})

	t.Run("RotateMintFailureKeepsOldActive", func(t *testing.T) {
		repo := newRepo(t)
		s := newSession(user(t), uuid.NewString(), base)
		require.NoError(t, repo.Create(ctx, s))

		boom := errors.New("boom")
		err := repo.Rotate(ctx, s.RefreshHash, base.Add(time.Minute), func(*models.Session) (*models.Session, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetByRefreshHash(ctx, s.RefreshHash)
		require.NoError(t, err)
		assert.True(t, got.Active)
	})

	t.Run("ConcurrentRotateSingleWinner", func(t *testing.T) {
		repo := newRepo(t)
		s := newSession(user(t), uuid.NewString(), base)
		require.NoError(t, repo.Create(ctx, s))

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				at := base.Add(time.Duration(i+1) * time.Second)
				errs <- repo.Rotate(ctx, s.RefreshHash, at, func(old *models.Session) (*models.Session, error) {
					return newSession(old.UserID, old.FamilyID, at), nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)

		wins, losses := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repositories.ErrNotFound):
				losses++
			default:
				t.Fatalf("unexpected rotate error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, losses)
	})

	t.Run("DeactivateIsIdempotent", func(t *testing.T) {
		repo := newRepo(t)
		s := newSession(user(t), uuid.NewString(), base)
		require.NoError(t, repo.Create(ctx, s))

		ok, err := repo.DeactivateByHash(ctx, s.RefreshHash, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.DeactivateByHash(ctx, s.RefreshHash, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		closed, err := repo.GetByRefreshHash(ctx, s.RefreshHash)
		require.NoError(t, err)
		assert.False(t, closed.Active)
		assert.Empty(t, closed.ReplacedBy, "logout is not a rotation")

		ok, err = repo.DeactivateByHash(ctx, "unknown-"+uuid.NewString(), base)
		require.NoError(t, err)
		assert.False(t, ok)

		var next *models.Session
		err = repo.Rotate(ctx, s.RefreshHash, base.Add(3*time.Minute), mintFrom(&next, base))
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("RevokeFamilyAndUser", func(t *testing.T) {
		repo := newRepo(t)
		uid := user(t)
		family := uuid.NewString()
		a := newSession(uid, family, base)
		b := newSession(uid, family, base.Add(time.Second))
		other := newSession(uid, uuid.NewString(), base.Add(2*time.Second))
		for _, s := range []*models.Session{a, b, other} {
			require.NoError(t, repo.Create(ctx, s))
		}

		n, err := repo.RevokeFamily(ctx, family, base.Add(time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		active, err := repo.ListActiveByUser(ctx, uid, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, other.ID, active[0].ID)

		n, err = repo.RevokeAllForUser(ctx, uid, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		active, err = repo.ListActiveByUser(ctx, uid, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("GetUnknownHash", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByRefreshHash(ctx, fmt.Sprintf("nope-%s", uuid.NewString()))
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}
