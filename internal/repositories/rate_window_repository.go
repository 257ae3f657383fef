package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"samadhaan/internal/models"
)

type rateWindowRepository struct {
	DB *sql.DB
}

func NewRateWindowRepository(db *sql.DB) RateWindowRepository {
	return &rateWindowRepository{DB: db}
}

// Consume locks every window row (creating missing ones) inside one
// transaction, checks the limits and only then increments.
func (r *rateWindowRepository) Consume(ctx context.Context, scopeKey string, windows []models.WindowLimit) (*models.WindowLimit, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("rate_window begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO rate_windows (scope_key, window_start, window_seconds, count)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (scope_key, window_start, window_seconds) DO NOTHING
	`
	const lock = `
		SELECT count FROM rate_windows
		WHERE scope_key = $1 AND window_start = $2 AND window_seconds = $3
		FOR UPDATE
	`
	for i := range windows {
		w := windows[i]
		if _, err := tx.ExecContext(ctx, upsert, scopeKey, w.Start, seconds(w)); err != nil {
			return nil, fmt.Errorf("rate_window upsert: %w", err)
		}
		var count int
		if err := tx.QueryRowContext(ctx, lock, scopeKey, w.Start, seconds(w)).Scan(&count); err != nil {
			return nil, fmt.Errorf("rate_window lock: %w", err)
		}
		if count >= w.Limit {
			return &w, nil
		}
	}

	const incr = `
		UPDATE rate_windows SET count = count + 1
		WHERE scope_key = $1 AND window_start = $2 AND window_seconds = $3
	`
	for _, w := range windows {
		if _, err := tx.ExecContext(ctx, incr, scopeKey, w.Start, seconds(w)); err != nil {
			return nil, fmt.Errorf("rate_window increment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("rate_window commit: %w", err)
	}
	return nil, nil
}

// seconds различает минутное и суточное окно, которые в 00:00 UTC начинаются одновременно.
func seconds(w models.WindowLimit) int64 {
	return int64(w.Length / time.Second)
}

func (r *rateWindowRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM rate_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("rate_window delete before: %w", err)
	}
	return res.RowsAffected()
}
