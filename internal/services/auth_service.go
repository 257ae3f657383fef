package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
	"samadhaan/internal/utils"
)

type AuthService interface {
	Login(ctx context.Context, phone, clientIP string) (*models.ChallengeTicket, error)
	Verify(ctx context.Context, handle, code, device string) (*models.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) error
	Profile(ctx context.Context, userID int64) (*models.Profile, error)
	Sessions(ctx context.Context, userID int64) ([]models.Session, error)
	// Authenticate проверяет access-токен из заголовка Authorization.
	Authenticate(token string) (userID int64, phone string, err error)
}

type authService struct {
	otp      *OTPService
	sessions *SessionService
	tokens   *TokenService
	users    repositories.UserRepository
	timeout  time.Duration
}

func NewAuthService(
	otp *OTPService,
	sessions *SessionService,
	tokens *TokenService,
	users repositories.UserRepository,
	dependencyTimeout time.Duration,
) AuthService {
	if dependencyTimeout <= 0 {
		dependencyTimeout = 5 * time.Second
	}
	return &authService{
		otp:      otp,
		sessions: sessions,
		tokens:   tokens,
		users:    users,
		timeout:  dependencyTimeout,
	}
}

// bounded — общий дедлайн на все обращения к хранилищу и шлюзу в рамках операции.
func (s *authService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *authService) Login(ctx context.Context, phone, clientIP string) (*models.ChallengeTicket, error) {
	phone = utils.NormalizePhone(phone)
	if !utils.ValidPhone(phone) {
		return nil, fmt.Errorf("%w: phone must be in E.164 format", ErrValidation)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.otp.RequestChallenge(ctx, phone, clientIP)
}

func (s *authService) Verify(ctx context.Context, handle, code, device string) (*models.AuthResult, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	phone, err := s.otp.VerifyChallenge(ctx, handle, code)
	if err != nil {
		return nil, err
	}
	user, err := s.findOrCreateUser(ctx, phone)
	if err != nil {
		return nil, err
	}
	pair, err := s.sessions.CreatePair(ctx, user.ID, user.Phone, device)
	if err != nil {
		return nil, err
	}
	log.Printf("[auth][verify] user_id=%d phone=%s", user.ID, utils.MaskPhone(user.Phone))
	return &models.AuthResult{Tokens: pair, User: user}, nil
}

// findOrCreateUser: при гонке двух первых входов с одного номера второй
// получает ErrConflict и перечитывает уже созданного пользователя.
func (s *authService) findOrCreateUser(ctx context.Context, phone string) (*models.User, error) {
	u, err := s.users.FindByPhone(ctx, phone)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, dependency("user lookup", err)
	}

	u, err = s.users.CreateByPhone(ctx, phone)
	switch {
	case err == nil:
		log.Printf("[auth][user] created user_id=%d", u.ID)
		return u, nil
	case errors.Is(err, repositories.ErrConflict):
		u, err = s.users.FindByPhone(ctx, phone)
		if err != nil {
			return nil, dependency("user reread", err)
		}
		return u, nil
	default:
		return nil, dependency("user create", err)
	}
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.sessions.Rotate(ctx, refreshToken)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.sessions.Revoke(ctx, refreshToken)
}

func (s *authService) LogoutAll(ctx context.Context, userID int64) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	_, err := s.sessions.RevokeAll(ctx, userID)
	return err
}

func (s *authService) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, dependency("user get", err)
	}
	orgs, err := s.users.ListOrganizations(ctx, userID)
	if err != nil {
		return nil, dependency("user orgs", err)
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	return &models.Profile{ID: u.ID, Phone: u.Phone, Orgs: orgs}, nil
}

func (s *authService) Sessions(ctx context.Context, userID int64) ([]models.Session, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	list, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Session{}
	}
	return list, nil
}

func (s *authService) Authenticate(token string) (int64, string, error) {
	claims, err := s.tokens.Verify(token, AccessToken)
	if err != nil {
		return 0, "", err
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, "", err
	}
	return id, claims.Phone, nil
}
