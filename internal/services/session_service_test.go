package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/models"
	"samadhaan/internal/utils"
)

func TestSession_EndToEndRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.signIn(t, testPhone)
	t1 := res.Tokens

	f.clock.Advance(time.Second)
	t2, err := f.auth.Refresh(ctx, t1.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, t1.RefreshToken, t2.RefreshToken)
	assert.NotEqual(t, t1.AccessToken, t2.AccessToken)

	_, err = f.auth.Refresh(ctx, t1.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_StoresOnlyRefreshHash(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, testPhone)

	s, err := f.sessionDB.GetByRefreshHash(context.Background(), utils.HashToken(res.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, s.RefreshHash)
	assert.True(t, s.Active)
	assert.Equal(t, res.Tokens.RefreshExpiresAt, s.ExpiresAt)
	assert.Equal(t, "test-device", s.DeviceInfo)
}

func TestSession_ReuseAfterGraceRevokesFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.signIn(t, testPhone).Tokens
	f.clock.Advance(time.Second)
	t2, err := f.auth.Refresh(ctx, t1.RefreshToken)
	require.NoError(t, err)

	// старый токен всплыл через минуту: считаем кражей
	f.clock.Advance(time.Minute)
	_, err = f.auth.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.auth.Refresh(ctx, t2.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound, "the family was revoked")
	assert.Contains(t, f.notifier.kinds(), models.EventRefreshReuse)
}

func TestSession_ReplayAfterLogoutRaisesNoAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.signIn(t, testPhone).Tokens
	f.clock.Advance(time.Minute)
	other := f.signIn(t, testPhone).Tokens
	require.NoError(t, f.auth.Logout(ctx, t1.RefreshToken))

	f.clock.Advance(time.Minute)
	_, err := f.auth.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, f.notifier.kinds())

	_, err = f.auth.Refresh(ctx, other.RefreshToken)
	assert.NoError(t, err, "other sessions of the user are untouched")
}

func TestSession_ReuseRejectOnlyKeepsFamily(t *testing.T) {
	f := newFixture(t, func(_ *OTPConfig, _ *TokenConfig, sc *SessionConfig) {
		sc.ReuseDetection = ReuseRejectOnly
	})
	ctx := context.Background()

	t1 := f.signIn(t, testPhone).Tokens
	f.clock.Advance(time.Second)
	t2, err := f.auth.Refresh(ctx, t1.RefreshToken)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.auth.Refresh(ctx, t1.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.auth.Refresh(ctx, t2.RefreshToken)
	assert.NoError(t, err)
	assert.Empty(t, f.notifier.kinds())
}

func TestSession_ConcurrentRotationSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1 := f.signIn(t, testPhone).Tokens
	f.clock.Advance(time.Second)

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner *models.TokenPair
		wins   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := f.sessions.Rotate(ctx, t1.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winner = pair
			case errors.Is(err, ErrSessionNotFound):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	// проигравшие укладываются в grace-окно и не сносят семейство
	f.clock.Advance(time.Second)
	_, err := f.sessions.Rotate(ctx, winner.RefreshToken)
	assert.NoError(t, err)
}

func TestSession_ExpiredSession(t *testing.T) {
	f := newFixture(t, func(_ *OTPConfig, tk *TokenConfig, _ *SessionConfig) {
		tk.Leeway = time.Minute
	})
	ctx := context.Background()
	t1 := f.signIn(t, testPhone).Tokens

	// токен ещё проходит благодаря leeway, а строка сессии уже истекла
	f.clock.Advance(30*24*time.Hour + 30*time.Second)
	_, err := f.auth.Refresh(ctx, t1.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSession_GarbageRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	access := f.signIn(t, testPhone).Tokens.AccessToken
	_, err = f.auth.Refresh(ctx, access)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestSession_LogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1 := f.signIn(t, testPhone).Tokens

	require.NoError(t, f.auth.Logout(ctx, t1.RefreshToken))
	require.NoError(t, f.auth.Logout(ctx, t1.RefreshToken))
	require.NoError(t, f.auth.Logout(ctx, "garbage"))

	_, err := f.auth.Refresh(ctx, t1.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_LogoutAllAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.signIn(t, testPhone)
	f.clock.Advance(time.Minute)
	second := f.signIn(t, testPhone)
	require.Equal(t, first.User.ID, second.User.ID)

	list, err := f.auth.Sessions(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.auth.LogoutAll(ctx, first.User.ID))
	list, err = f.auth.Sessions(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.auth.Refresh(ctx, second.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
