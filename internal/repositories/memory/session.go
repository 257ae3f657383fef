package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: map[string]*models.Session{}}
}

func (r *SessionRepository) Create(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(s)
}

func (r *SessionRepository) insertLocked(s *models.Session) error {
	if _, ok := r.sessions[s.ID]; ok {
		return repositories.ErrConflict
	}
	if s.Active && r.activeByHashLocked(s.RefreshHash) != nil {
		return repositories.ErrConflict
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *SessionRepository) activeByHashLocked(hash string) *models.Session {
	for _, s := range r.sessions {
		if s.Active && s.RefreshHash == hash {
			return s
		}
	}
	return nil
}

func (r *SessionRepository) Rotate(_ context.Context, refreshHash string, now time.Time, mint repositories.MintFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.activeByHashLocked(refreshHash)
	if old == nil {
		return repositories.ErrNotFound
	}
	if !now.Before(old.ExpiresAt) {
		return repositories.ErrExpired
	}
	snapshot := *old
	next, err := mint(&snapshot)
	if err != nil {
		return err
	}

	old.Active = false
	revoked := now
	old.RevokedAt = &revoked
	old.ReplacedBy = next.ID
	if err := r.insertLocked(next); err != nil {
		old.Active = true
		old.RevokedAt = nil
		old.ReplacedBy = ""
		return err
	}
	return nil
}

func (r *SessionRepository) GetByRefreshHash(_ context.Context, refreshHash string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.Session
	for _, s := range r.sessions {
		if s.RefreshHash != refreshHash {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, repositories.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *SessionRepository) DeactivateByHash(_ context.Context, refreshHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.activeByHashLocked(refreshHash)
	if s == nil {
		return false, nil
	}
	s.Active = false
	s.RevokedAt = &now
	return true, nil
}

func (r *SessionRepository) revokeWhere(now time.Time, match func(*models.Session) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Active && match(s) {
			s.Active = false
			t := now
			s.RevokedAt = &t
			n++
		}
	}
	return n
}

func (r *SessionRepository) RevokeFamily(_ context.Context, familyID string, now time.Time) (int64, error) {
	return r.revokeWhere(now, func(s *models.Session) bool { return s.FamilyID == familyID }), nil
}

func (r *SessionRepository) RevokeAllForUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	return r.revokeWhere(now, func(s *models.Session) bool { return s.UserID == userID }), nil
}

func (r *SessionRepository) ListActiveByUser(_ context.Context, userID int64, now time.Time) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []models.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active && now.Before(s.ExpiresAt) {
			res = append(res, *s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
