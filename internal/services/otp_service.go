package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/utils"
)

const (
	codeLength       = 6
	handleBytes      = 32 // 256 бит
	defaultOTPExpiry = 5 * time.Minute
)

type OTPConfig struct {
	Expiry         time.Duration
	MaxAttempts    int
	PerMinuteLimit int
	PerDayLimit    int
	// Лимиты на IP; 0 отключает окно.
	IPPerMinuteLimit int
	IPPerDayLimit    int
	ResendCooldown   time.Duration
	BcryptCost       int
}

type OTPService struct {
	repo     repositories.OTPChallengeRepository
	limiter  *RateLimiter
	sender   SMSSender
	notifier SecurityNotifier
	cfg      OTPConfig
	now      func() time.Time
}

func NewOTPService(
	repo repositories.OTPChallengeRepository,
	limiter *RateLimiter,
	sender SMSSender,
	notifier SecurityNotifier,
	cfg OTPConfig,
	now func() time.Time,
) *OTPService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = defaultOTPExpiry
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if now == nil {
		now = time.Now
	}
	return &OTPService{
		repo:     repo,
		limiter:  limiter,
		sender:   sender,
		notifier: notifier,
		cfg:      cfg,
		now:      now,
	}
}

// RequestChallenge — лимиты, новый код, bcrypt-хэш, запись, отправка SMS.
// Бюджет лимитера тратится до отправки, даже если шлюз потом упадёт.
func (s *OTPService) RequestChallenge(ctx context.Context, phone, clientIP string) (*models.ChallengeTicket, error) {
	if clientIP != "" {
		if err := s.limiter.RecordAndCheck(ctx, "otp:ip:"+clientIP, s.cfg.IPPerMinuteLimit, s.cfg.IPPerDayLimit); err != nil {
			return nil, err
		}
	}
	if err := s.limiter.RecordAndCheck(ctx, "otp:phone:"+phone, s.cfg.PerMinuteLimit, s.cfg.PerDayLimit); err != nil {
		return nil, err
	}

	code, err := utils.NewNumericCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	handle, err := utils.NewRandomHex(handleBytes)
	if err != nil {
		return nil, fmt.Errorf("generate handle: %w", err)
	}
	hash, err := hashCode(ctx, code, s.cfg.BcryptCost)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dependency("otp hash", err)
		}
		return nil, fmt.Errorf("bcrypt generate: %w", err)
	}

	now := s.now()
	ch := &models.OTPChallenge{
		Handle:    handle,
		Phone:     phone,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.cfg.Expiry),
		Attempts:  0,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, ch); err != nil {
		return nil, dependency("otp create", err)
	}

	if err := s.sender.Send(ctx, phone, code); err != nil {
		log.Printf("[otp][send] gateway failed phone=%s err=%v", utils.MaskPhone(phone), err)
		s.notify(ctx, models.SecurityEvent{
			Kind:   models.EventSMSGatewayErr,
			Phone:  utils.MaskPhone(phone),
			Detail: err.Error(),
			At:     now,
		})
		return nil, dependency("sms send", err)
	}

	log.Printf("[otp][send] ok phone=%s", utils.MaskPhone(phone))
	return &models.ChallengeTicket{
		Handle:                handle,
		ResendCooldownSeconds: int(s.cfg.ResendCooldown / time.Second),
		ExpiresAt:             ch.ExpiresAt,
	}, nil
}

// VerifyChallenge returns the phone the challenge was issued for. Every call
// spends an attempt first, so guesses are counted even when the code is
// malformed. Expired or exhausted records are left for the sweeper.
func (s *OTPService) VerifyChallenge(ctx context.Context, handle, code string) (string, error) {
	ch, err := s.repo.IncrementAttempts(ctx, handle)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrChallengeNotFound
		}
		return "", dependency("otp increment attempts", err)
	}

	if s.now().After(ch.ExpiresAt) {
		return "", ErrChallengeExpired
	}
	if ch.Attempts > s.cfg.MaxAttempts {
		return "", ErrAttemptsExceeded
	}
	if !wellFormedCode(code) {
		return "", ErrInvalidCode
	}

	ok, err := codeMatches(ctx, ch.CodeHash, code)
	if err != nil {
		if ctx.Err() != nil {
			return "", dependency("otp compare", err)
		}
		return "", fmt.Errorf("bcrypt compare: %w", err)
	}
	if !ok {
		return "", ErrInvalidCode
	}

	deleted, err := s.repo.Delete(ctx, handle)
	if err != nil {
		return "", dependency("otp delete", err)
	}
	if !deleted {
		// параллельный verify успел раньше
		return "", ErrChallengeNotFound
	}
	return ch.Phone, nil
}

func (s *OTPService) notify(ctx context.Context, ev models.SecurityEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		log.Printf("[otp][notify] kind=%s err=%v", ev.Kind, err)
	}
}

func wellFormedCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
