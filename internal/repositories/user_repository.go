package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"samadhaan/internal/models"
)

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	u := &models.User{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, phone, created_at FROM users WHERE phone = $1`, phone,
	).Scan(&u.ID, &u.Phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user find by phone: %w", err)
	}
	return u, nil
}

func (r *userRepository) CreateByPhone(ctx context.Context, phone string) (*models.User, error) {
	u := &models.User{Phone: phone}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (phone) VALUES ($1) RETURNING id, created_at`, phone,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("user create by phone: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, phone, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user get by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) ListOrganizations(ctx context.Context, userID int64) ([]models.Organization, error) {
	const q = `
		SELECT o.id, o.name, m.role
		FROM organization_members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY o.name
	`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("user list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []models.Organization{}
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Role); err != nil {
			return nil, fmt.Errorf("organization scan: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// isUniqueViolation — код 23505 у Postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
