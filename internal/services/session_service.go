package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/utils"
)

const (
	ReuseRevokeFamily = "revoke_family"
	ReuseRejectOnly   = "reject_only"
)

type SessionConfig struct {
	ReuseDetection string
	// ReuseGrace — сколько после ротации повторное предъявление старого
	// токена считается гонкой параллельных refresh, а не кражей.
	ReuseGrace time.Duration
}

type SessionService struct {
	repo     repositories.SessionRepository
	tokens   *TokenService
	notifier SecurityNotifier
	cfg      SessionConfig
	now      func() time.Time
}

func NewSessionService(
	repo repositories.SessionRepository,
	tokens *TokenService,
	notifier SecurityNotifier,
	cfg SessionConfig,
	now func() time.Time,
) *SessionService {
	if cfg.ReuseDetection == "" {
		cfg.ReuseDetection = ReuseRevokeFamily
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{repo: repo, tokens: tokens, notifier: notifier, cfg: cfg, now: now}
}

// mint — единственное место, где рождаются пары токенов и строки сессий.
func (s *SessionService) mint(userID int64, phone, device, familyID string) (*models.Session, *models.TokenPair, error) {
	jti := uuid.NewString()
	access, accessExp, err := s.tokens.IssueAccess(userID, phone, jti)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(userID, phone, jti)
	if err != nil {
		return nil, nil, err
	}
	sess := &models.Session{
		ID:          jti,
		FamilyID:    familyID,
		UserID:      userID,
		Phone:       phone,
		RefreshHash: utils.HashToken(refresh),
		DeviceInfo:  device,
		ExpiresAt:   refreshExp,
		Active:      true,
		CreatedAt:   s.now(),
	}
	pair := &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	return sess, pair, nil
}

func (s *SessionService) CreatePair(ctx context.Context, userID int64, phone, device string) (*models.TokenPair, error) {
	sess, pair, err := s.mint(userID, phone, device, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, dependency("session create", err)
	}
	log.Printf("[session][create] user_id=%d session=%s", userID, sess.ID)
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. Of concurrent rotations
// of the same token exactly one succeeds; the rest get ErrSessionNotFound.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if _, err := s.tokens.Verify(refreshToken, RefreshToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	hash := utils.HashToken(refreshToken)
	now := s.now()
	var pair *models.TokenPair
	err := s.repo.Rotate(ctx, hash, now, func(old *models.Session) (*models.Session, error) {
		sess, p, err := s.mint(old.UserID, old.Phone, old.DeviceInfo, old.FamilyID)
		if err != nil {
			return nil, err
		}
		pair = p
		return sess, nil
	})
	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, repositories.ErrNotFound):
		s.handleReuse(ctx, hash, now)
		return nil, ErrSessionNotFound
	case errors.Is(err, repositories.ErrExpired):
		return nil, ErrSessionExpired
	default:
		return nil, dependency("session rotate", err)
	}
}

// handleReuse revokes the whole family when an already rotated refresh token
// shows up again outside the grace window. Tokens closed by logout are just
// dead: replaying them is not reuse.
func (s *SessionService) handleReuse(ctx context.Context, hash string, now time.Time) {
	if s.cfg.ReuseDetection != ReuseRevokeFamily {
		return
	}
	prev, err := s.repo.GetByRefreshHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			log.Printf("[session][reuse] lookup failed err=%v", err)
		}
		return
	}
	if prev.Active || prev.ReplacedBy == "" {
		return
	}
	if prev.RevokedAt != nil && now.Sub(*prev.RevokedAt) < s.cfg.ReuseGrace {
		return
	}

	n, err := s.repo.RevokeFamily(ctx, prev.FamilyID, now)
	if err != nil {
		log.Printf("[session][reuse] revoke family=%s failed err=%v", prev.FamilyID, err)
		return
	}
	log.Printf("[session][reuse] user_id=%d family=%s revoked=%d", prev.UserID, prev.FamilyID, n)

	if s.notifier != nil {
		ev := models.SecurityEvent{
			Kind:     models.EventRefreshReuse,
			UserID:   prev.UserID,
			Phone:    utils.MaskPhone(prev.Phone),
			FamilyID: prev.FamilyID,
			Detail:   fmt.Sprintf("revoked %d active session(s)", n),
			At:       now,
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Printf("[session][reuse] notify failed err=%v", err)
		}
	}
}

// Revoke is idempotent; unknown or garbage tokens are a no-op.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.repo.DeactivateByHash(ctx, utils.HashToken(refreshToken), s.now()); err != nil {
		return dependency("session revoke", err)
	}
	return nil
}

func (s *SessionService) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, dependency("session revoke all", err)
	}
	log.Printf("[session][revoke_all] user_id=%d revoked=%d", userID, n)
	return n, nil
}

func (s *SessionService) ListActive(ctx context.Context, userID int64) ([]models.Session, error) {
	list, err := s.repo.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, dependency("session list", err)
	}
	return list, nil
}
