package models

import "time"

// Session — серверная запись выданного refresh-токена (храним только хэш).
type Session struct {
	ID          string     `json:"id"`
	FamilyID    string     `json:"-"`
	UserID      int64      `json:"user_id"`
	Phone       string     `json:"-"`
	RefreshHash string     `json:"-"`
	DeviceInfo  string     `json:"device_info,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	// ReplacedBy — id сессии, выданной при ротации; пусто, если сессию закрыли logout'ом.
	ReplacedBy  string     `json:"-"`
}

// TokenPair is never persisted; only the refresh hash ends up in a Session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type SecurityEventKind string

const (
	EventRefreshReuse  SecurityEventKind = "refresh_reuse"
	EventSMSGatewayErr SecurityEventKind = "sms_gateway_failure"
)

type SecurityEvent struct {
	Kind     SecurityEventKind
	UserID   int64
	Phone    string
	FamilyID string
	Detail   string
	At       time.Time
}
