package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"samadhaan/internal/models"
)

type sessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{DB: db}
}

const sessionColumns = `id, family_id, user_id, phone, refresh_hash, device_info, expires_at, active, created_at, revoked_at, replaced_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s         models.Session
		device     sql.NullString
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.FamilyID, &s.UserID, &s.Phone, &s.RefreshHash, &device,
		&s.ExpiresAt, &s.Active, &s.CreatedAt, &revokedAt, &replacedBy,
	); err != nil {
		return nil, err
	}
	if device.Valid {
		s.DeviceInfo = device.String
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	s.ReplacedBy = replacedBy.String
	return &s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, s *models.Session) error {
	const q = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var device, replacedBy sql.NullString
	if s.DeviceInfo != "" {
		device = sql.NullString{String: s.DeviceInfo, Valid: true}
	}
	if s.ReplacedBy != "" {
		replacedBy = sql.NullString{String: s.ReplacedBy, Valid: true}
	}
	if _, err := db.ExecContext(ctx, q,
		s.ID, s.FamilyID, s.UserID, s.Phone, s.RefreshHash, device,
		s.ExpiresAt, s.Active, s.CreatedAt, s.RevokedAt, replacedBy,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("session insert: %w", err)
	}
	return nil
}

func (r *sessionRepository) Create(ctx context.Context, s *models.Session) error {
	return insertSession(ctx, r.DB, s)
}

// Rotate — SELECT ... FOR UPDATE по хэшу, затем деактивация старой строки и
// вставка новой в одной транзакции. Проигравший в гонке после разблокировки
// уже не видит active=TRUE и получает ErrNotFound.
func (r *sessionRepository) Rotate(ctx context.Context, refreshHash string, now time.Time, mint MintFunc) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session rotate begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_hash = $1 AND active FOR UPDATE`
	old, err := scanSession(tx.QueryRowContext(ctx, q, refreshHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("session rotate lock: %w", err)
	}
	if !now.Before(old.ExpiresAt) {
		return ErrExpired
	}

	next, err := mint(old)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE, revoked_at = $2, replaced_by = $3 WHERE id = $1`, old.ID, now, next.ID,
	); err != nil {
		return fmt.Errorf("session rotate deactivate: %w", err)
	}
	if err := insertSession(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session rotate commit: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_hash = $1 ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(r.DB.QueryRowContext(ctx, q, refreshHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session get by hash: %w", err)
	}
	return s, nil
}

func (r *sessionRepository) DeactivateByHash(ctx context.Context, refreshHash string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE, revoked_at = $2 WHERE refresh_hash = $1 AND active`,
		refreshHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("session deactivate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session deactivate rows: %w", err)
	}
	return n > 0, nil
}

func (r *sessionRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE, revoked_at = $2 WHERE family_id = $1 AND active`,
		familyID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("session revoke family: %w", err)
	}
	return res.RowsAffected()
}

func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET active = FALSE, revoked_at = $2 WHERE user_id = $1 AND active`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("session revoke all: %w", err)
	}
	return res.RowsAffected()
}

func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND active AND expires_at > $2
		ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, q, userID, now)
	if err != nil {
		return nil, fmt.Errorf("session list active: %w", err)
	}
	defer rows.Close()

	var res []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session scan: %w", err)
		}
		res = append(res, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session rows: %w", err)
	}
	return res, nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("session delete expired: %w", err)
	}
	return res.RowsAffected()
}
