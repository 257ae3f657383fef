package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Leeway продлевает exp. По умолчанию 0: истечение точное до секунды,
	// а рассинхрон часов допускается только по iat (MaxFutureIAT).
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	Issuer        string
}

// Claims — access: {sub, phone, jti, iat, exp}; refresh дополнительно type=refresh.
type Claims struct {
	Phone string `json:"phone"`
	Type  string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	return id, nil
}

// TokenService подписывает и проверяет JWT (HS256). Без I/O.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenService(cfg TokenConfig, now func() time.Time) (*TokenService, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("jwt secrets must be at least 32 bytes")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("jwt access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{cfg: cfg, now: now}, nil
}

func (s *TokenService) secret(t TokenType) []byte {
	if t == RefreshToken {
		return []byte(s.cfg.RefreshSecret)
	}
	return []byte(s.cfg.AccessSecret)
}

func (s *TokenService) issue(t TokenType, ttl time.Duration, userID int64, phone, jti string) (string, time.Time, error) {
	now := s.now()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	if t == RefreshToken {
		claims.Type = string(RefreshToken)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret(t))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", t, err)
	}
	return signed, exp.Time, nil
}

func (s *TokenService) IssueAccess(userID int64, phone, jti string) (string, time.Time, error) {
	return s.issue(AccessToken, s.cfg.AccessTTL, userID, phone, jti)
}

func (s *TokenService) IssueRefresh(userID int64, phone, jti string) (string, time.Time, error) {
	return s.issue(RefreshToken, s.cfg.RefreshTTL, userID, phone, jti)
}

// Verify checks signature, algorithm, expiry and the type claim. A token
// signed with the other secret fails the signature check and is malformed.
func (s *TokenService) Verify(token string, want TokenType) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret(want), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	// небольшой сдвиг часов допускаем только для iat
	if claims.IssuedAt != nil && claims.IssuedAt.After(s.now().Add(s.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrTokenMalformed)
	}

	switch want {
	case RefreshToken:
		if claims.Type != string(RefreshToken) {
			return nil, ErrTokenWrongType
		}
	default:
		if claims.Type != "" && claims.Type != string(AccessToken) {
			return nil, ErrTokenWrongType
		}
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
