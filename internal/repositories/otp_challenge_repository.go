package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"samadhaan/internal/models"
)

type otpChallengeRepository struct {
	DB *sql.DB
}

func NewOTPChallengeRepository(db *sql.DB) OTPChallengeRepository {
	return &otpChallengeRepository{DB: db}
}

// Create — каждая отправка кода создаёт новую строку со своим handle.
func (r *otpChallengeRepository) Create(ctx context.Context, ch *models.OTPChallenge) error {
	const q = `
		INSERT INTO otp_challenges (handle, phone, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.DB.ExecContext(ctx, q,
		ch.Handle, ch.Phone, ch.CodeHash, ch.ExpiresAt, ch.Attempts, ch.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("otp_challenge create: %w", err)
	}
	return nil
}

// IncrementAttempts — +1 попытка одним UPDATE ... RETURNING, без read-modify-write.
func (r *otpChallengeRepository) IncrementAttempts(ctx context.Context, handle string) (*models.OTPChallenge, error) {
	const q = `
		UPDATE otp_challenges
		SET attempts = attempts + 1
		WHERE handle = $1
		RETURNING handle, phone, code_hash, expires_at, attempts, created_at
	`
	var ch models.OTPChallenge
	err := r.DB.QueryRowContext(ctx, q, handle).Scan(
		&ch.Handle, &ch.Phone, &ch.CodeHash, &ch.ExpiresAt, &ch.Attempts, &ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("otp_challenge increment attempts: %w", err)
	}
	return &ch, nil
}

func (r *otpChallengeRepository) Delete(ctx context.Context, handle string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM otp_challenges WHERE handle = $1`, handle)
	if err != nil {
		return false, fmt.Errorf("otp_challenge delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("otp_challenge delete rows: %w", err)
	}
	return n > 0, nil
}

func (r *otpChallengeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("otp_challenge delete expired: %w", err)
	}
	return res.RowsAffected()
}
