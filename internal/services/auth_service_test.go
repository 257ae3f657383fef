package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/repositories/memory"
)

func TestAuth_LoginValidatesPhone(t *testing.T) {
	f := newFixture(t)
	for _, phone := range []string{"", "9876543210", "+0123456789", "+91-abc", "+1234"} {
		_, err := f.auth.Login(context.Background(), phone, "")
		assert.ErrorIs(t, err, ErrValidation, phone)
	}
	assert.Zero(t, f.challenges.Len())
}

func TestAuth_LoginNormalizesPhone(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Login(context.Background(), "+91 (98765) 43-210", "")
	require.NoError(t, err)
	assert.NotEmpty(t, f.sender.lastCode(testPhone))
}

func TestAuth_VerifyCreatesUserOnce(t *testing.T) {
	f := newFixture(t)

	first := f.signIn(t, testPhone)
	assert.Equal(t, testPhone, first.User.Phone)
	assert.NotEmpty(t, first.Tokens.AccessToken)

	f.clock.Advance(time.Minute)
	second := f.signIn(t, testPhone)
	assert.Equal(t, first.User.ID, second.User.ID)
}

func TestAuth_AccessTokenAuthenticates(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, testPhone)

	id, phone, err := f.auth.Authenticate(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id)
	assert.Equal(t, testPhone, phone)

	_, _, err = f.auth.Authenticate(res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	f.clock.Advance(15*time.Minute + time.Second)
	_, _, err = f.auth.Authenticate(res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuth_Profile(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, testPhone)
	f.users.AddMembership(res.User.ID, models.Organization{ID: 3, Name: "Ward 12 Office", Role: "officer"})

	p, err := f.auth.Profile(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, testPhone, p.Phone)
	require.Len(t, p.Orgs, 1)
	assert.Equal(t, "officer", p.Orgs[0].Role)

	_, err = f.auth.Profile(context.Background(), res.User.ID+1000)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuth_ProfileWithoutOrgsIsEmptyList(t *testing.T) {
	f := newFixture(t)
	res := f.signIn(t, testPhone)

	p, err := f.auth.Profile(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, p.Orgs)
	assert.Empty(t, p.Orgs)
}

// blockingSender ждёт отмены контекста, имитируя зависший шлюз.
type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuth_DependencyTimeout(t *testing.T) {
	clock := newFakeClock()
	otp := NewOTPService(
		memory.NewOTPChallengeRepository(),
		NewRateLimiter(memory.NewRateWindowRepository(), clock.Now),
		blockingSender{}, nil, defaultOTPConfig(), clock.Now,
	)
	tokens, err := NewTokenService(defaultTokenConfig(), clock.Now)
	require.NoError(t, err)
	sessions := NewSessionService(memory.NewSessionRepository(), tokens, nil, SessionConfig{}, clock.Now)
	auth := NewAuthService(otp, sessions, tokens, memory.NewUserRepository(), 50*time.Millisecond)

	start := time.Now()
	_, err = auth.Login(context.Background(), testPhone, "")
	assert.ErrorIs(t, err, ErrDependencyFailure)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// staleUsers промахивается на первом поиске, как если бы параллельный вход
// создал пользователя между FindByPhone и CreateByPhone.
type staleUsers struct {
	*memory.UserRepository
	missed bool
}

func (r *staleUsers) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	if !r.missed {
		r.missed = true
		return nil, repositories.ErrNotFound
	}
	return r.UserRepository.FindByPhone(ctx, phone)
}

func TestAuth_CreateConflictRereadsUser(t *testing.T) {
	f := newFixture(t)
	existing, err := f.users.CreateByPhone(context.Background(), testPhone)
	require.NoError(t, err)

	auth := NewAuthService(f.otp, f.sessions, f.tokens, &staleUsers{UserRepository: f.users}, time.Second)
	ticket, err := auth.Login(context.Background(), testPhone, "")
	require.NoError(t, err)
	res, err := auth.Verify(context.Background(), ticket.Handle, f.sender.lastCode(testPhone), "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.User.ID)
}

func TestAuth_ConcurrentFirstLoginResolvesToOneUser(t *testing.T) {
	f := newFixture(t, func(o *OTPConfig, _ *TokenConfig, _ *SessionConfig) { o.PerMinuteLimit = 0 })
	ctx := context.Background()

	t1, err := f.auth.Login(ctx, testPhone, "")
	require.NoError(t, err)
	c1 := f.sender.lastCode(testPhone)
	t2, err := f.auth.Login(ctx, testPhone, "")
	require.NoError(t, err)
	c2 := f.sender.lastCode(testPhone)

	var (
		wg  sync.WaitGroup
		ids [2]int64
	)
	for i, pair := range [][2]string{{t1.Handle, c1}, {t2.Handle, c2}} {
		wg.Add(1)
		go func(i int, handle, code string) {
			defer wg.Done()
			res, err := f.auth.Verify(ctx, handle, code, "")
			if assert.NoError(t, err) {
				ids[i] = res.User.ID
			}
		}(i, pair[0], pair[1])
	}
	wg.Wait()
	assert.Equal(t, ids[0], ids[1])
}
