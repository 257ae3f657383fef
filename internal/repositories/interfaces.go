package repositories

import (
	"context"
	"time"

	"samadhaan/internal/models"
)

type OTPChallengeRepository interface {
	Create(ctx context.Context, ch *models.OTPChallenge) error
	// IncrementAttempts atomically adds one attempt and returns the updated record.
	IncrementAttempts(ctx context.Context, handle string) (*models.OTPChallenge, error)
	// Delete reports whether this call removed the record.
	Delete(ctx context.Context, handle string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type RateWindowRepository interface {
	// Consume increments every window only if each one is below its limit.
	// It returns the first window found at its limit, or nil when the budget was consumed.
	Consume(ctx context.Context, scopeKey string, windows []models.WindowLimit) (*models.WindowLimit, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MintFunc builds the replacement session while the old one is locked.
// It must not do I/O.
type MintFunc func(old *models.Session) (*models.Session, error)

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	// Rotate deactivates the active session matching refreshHash and inserts
	// the session returned by mint, as one atomic step. ErrNotFound when no
	// active row matches, ErrExpired when the matching row is expired.
	Rotate(ctx context.Context, refreshHash string, now time.Time, mint MintFunc) error
	// GetByRefreshHash returns the row regardless of its active flag.
	GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error)
	DeactivateByHash(ctx context.Context, refreshHash string, now time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error)
	ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]models.Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository is the user directory: lookup-or-create by phone plus
// read-only organization memberships.
type UserRepository interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	CreateByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListOrganizations(ctx context.Context, userID int64) ([]models.Organization, error)
}
