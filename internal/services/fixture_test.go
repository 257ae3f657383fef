package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories/memory"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdef0123456789"
	testRefreshSecret = "refresh-secret-0123456789abcdef012345678"
	testPhone         = "+919876543210"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	err   error
}

func (s *captureSender) Send(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	s.sent++
	return nil
}

func (s *captureSender) lastCode(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.SecurityEvent) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) kinds() []models.SecurityEventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.SecurityEventKind
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	clock      *fakeClock
	sender     *captureSender
	notifier   *recordingNotifier
	challenges *memory.OTPChallengeRepository
	windows    *memory.RateWindowRepository
	sessionDB  *memory.SessionRepository
	users      *memory.UserRepository

	otp      *OTPService
	tokens   *TokenService
	sessions *SessionService
	auth     AuthService
}

func defaultOTPConfig() OTPConfig {
	return OTPConfig{
		Expiry:         5 * time.Minute,
		MaxAttempts:    5,
		PerMinuteLimit: 1,
		PerDayLimit:    10,
		ResendCooldown: 60 * time.Second,
		BcryptCost:     bcrypt.MinCost,
	}
}

func defaultTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		MaxFutureIAT:  5 * time.Second,
	}
}

type fixtureOption func(o *OTPConfig, tk *TokenConfig, sc *SessionConfig)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	otpCfg := defaultOTPConfig()
	tokCfg := defaultTokenConfig()
	sessCfg := SessionConfig{ReuseDetection: ReuseRevokeFamily, ReuseGrace: 10 * time.Second}
	for _, o := range opts {
		o(&otpCfg, &tokCfg, &sessCfg)
	}

	f := &fixture{
		clock:      newFakeClock(),
		sender:     &captureSender{},
		notifier:   &recordingNotifier{},
		challenges: memory.NewOTPChallengeRepository(),
		windows:    memory.NewRateWindowRepository(),
		sessionDB:  memory.NewSessionRepository(),
		users:      memory.NewUserRepository(),
	}
	limiter := NewRateLimiter(f.windows, f.clock.Now)
	f.otp = NewOTPService(f.challenges, limiter, f.sender, f.notifier, otpCfg, f.clock.Now)

	tokens, err := NewTokenService(tokCfg, f.clock.Now)
	require.NoError(t, err)
	f.tokens = tokens
	f.sessions = NewSessionService(f.sessionDB, tokens, f.notifier, sessCfg, f.clock.Now)
	f.auth = NewAuthService(f.otp, f.sessions, tokens, f.users, 2*time.Second)
	return f
}

// signIn runs login plus verify and returns the result.
func (f *fixture) signIn(t *testing.T, phone string) *models.AuthResult {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.auth.Login(ctx, phone, "")
	require.NoError(t, err)
	res, err := f.auth.Verify(ctx, ticket.Handle, f.sender.lastCode(phone), "test-device")
	require.NoError(t, err)
	return res
}
