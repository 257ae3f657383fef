package memory

import (
	"context"
	"sync"
	"time"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

type UserRepository struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]models.User
	byPhone map[string]int64
	orgs    map[int64][]models.Organization
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    map[int64]models.User{},
		byPhone: map[string]int64{},
		orgs:    map[int64][]models.Organization{},
	}
}

func (r *UserRepository) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *UserRepository) CreateByPhone(_ context.Context, phone string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPhone[phone]; ok {
		return nil, repositories.ErrConflict
	}
	r.nextID++
	u := models.User{ID: r.nextID, Phone: phone, CreatedAt: time.Now()}
	r.byID[u.ID] = u
	r.byPhone[phone] = u.ID
	return &u, nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) ListOrganizations(_ context.Context, userID int64) ([]models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]models.Organization, len(r.orgs[userID]))
	copy(res, r.orgs[userID])
	return res, nil
}

// AddMembership seeds an organization membership.
func (r *UserRepository) AddMembership(userID int64, org models.Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[userID] = append(r.orgs[userID], org)
}
