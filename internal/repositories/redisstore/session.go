package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

// Inactive sessions are kept past their expiry so a replayed refresh token
// can still be traced back to its family.
const sessionGrace = 24 * time.Hour

const maxWatchRetries = 3

type sessionRecord struct {
	ID          string     `json:"id"`
	FamilyID    string     `json:"family_id"`
	UserID      int64      `json:"user_id"`
	Phone       string     `json:"phone"`
	RefreshHash string     `json:"refresh_hash"`
	DeviceInfo  string     `json:"device_info,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy  string     `json:"replaced_by,omitempty"`
}

func toRecord(s *models.Session) sessionRecord {
	return sessionRecord(*s)
}

func (rec sessionRecord) model() *models.Session {
	s := models.Session(rec)
	return &s
}

type SessionRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewSessionRepository(client redis.UniversalClient, prefix string) *SessionRepository {
	return &SessionRepository{client: client, prefix: prefix}
}

func (r *SessionRepository) sessionKey(id string) string { return r.prefix + "session:" + id }
func (r *SessionRepository) hashKey(h string) string     { return r.prefix + "session:hash:" + h }
func (r *SessionRepository) userKey(id int64) string {
	return r.prefix + "session:user:" + strconv.FormatInt(id, 10)
}
func (r *SessionRepository) familyKey(id string) string { return r.prefix + "session:family:" + id }

func sessionTTL(s *models.Session) time.Duration {
	ttl := s.ExpiresAt.Sub(s.CreatedAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + sessionGrace
}

func (r *SessionRepository) queueInsert(ctx context.Context, p redis.Pipeliner, s *models.Session) error {
	blob, err := json.Marshal(toRecord(s))
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	ttl := sessionTTL(s)
	p.Set(ctx, r.sessionKey(s.ID), blob, ttl)
	p.Set(ctx, r.hashKey(s.RefreshHash), s.ID, ttl)
	p.SAdd(ctx, r.userKey(s.UserID), s.ID)
	p.Expire(ctx, r.userKey(s.UserID), ttl)
	p.SAdd(ctx, r.familyKey(s.FamilyID), s.ID)
	p.Expire(ctx, r.familyKey(s.FamilyID), ttl)
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	var encodeErr error
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		encodeErr = r.queueInsert(ctx, p, s)
		return encodeErr
	})
	if encodeErr != nil {
		return encodeErr
	}
	if err != nil {
		return unavailable("session create", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *SessionRepository) load(ctx context.Context, c getter, id string) (*models.Session, error) {
	blob, err := c.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, unavailable("session load", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("session decode %s: %w", id, err)
	}
	return rec.model(), nil
}

func (r *SessionRepository) lookupID(ctx context.Context, c getter, refreshHash string) (string, error) {
	id, err := c.Get(ctx, r.hashKey(refreshHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repositories.ErrNotFound
		}
		return "", unavailable("session lookup", err)
	}
	return id, nil
}

// Rotate watches the session blob; a concurrent rotation that commits first
// makes EXEC fail here, which the loser reports as ErrNotFound.
func (r *SessionRepository) Rotate(ctx context.Context, refreshHash string, now time.Time, mint repositories.MintFunc) error {
	hashKey := r.hashKey(refreshHash)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		id, err := r.lookupID(ctx, tx, refreshHash)
		if err != nil {
			return err
		}
		if err := tx.Watch(ctx, r.sessionKey(id)).Err(); err != nil {
			return unavailable("session watch", err)
		}
		old, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !old.Active {
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
		old.RevokedAt = &now
		old.ReplacedBy = next.ID
		blob, err := json.Marshal(toRecord(old))
		if err != nil {
			return fmt.Errorf("session encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.sessionKey(old.ID), blob, redis.KeepTTL)
			return r.queueInsert(ctx, p, next)
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable("session rotate", err)
		}
		return err
	}, hashKey)

	if errors.Is(err, redis.TxFailedErr) {
		return repositories.ErrNotFound
	}
	return err
}

func (r *SessionRepository) GetByRefreshHash(ctx context.Context, refreshHash string) (*models.Session, error) {
	id, err := r.lookupID(ctx, r.client, refreshHash)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, r.client, id)
}

// deactivate flips one session to inactive under WATCH, retrying a few times
// if the blob changes underneath.
func (r *SessionRepository) deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	key := r.sessionKey(id)
	for i := 0; i < maxWatchRetries; i++ {
		changed := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			s, err := r.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if !s.Active {
				return nil
			}
			s.Active = false
			s.RevokedAt = &now
			blob, err := json.Marshal(toRecord(s))
			if err != nil {
				return fmt.Errorf("session encode: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, blob, redis.KeepTTL)
				return nil
			})
			if err == nil {
				changed = true
			}
			return err
		}, key)
		switch {
		case err == nil:
			return changed, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, repositories.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
	return false, unavailable("session deactivate", redis.TxFailedErr)
}

func (r *SessionRepository) DeactivateByHash(ctx context.Context, refreshHash string, now time.Time) (bool, error) {
	id, err := r.lookupID(ctx, r.client, refreshHash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.deactivate(ctx, id, now)
}

func (r *SessionRepository) revokeSet(ctx context.Context, setKey string, now time.Time) (int64, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, unavailable("session members", err)
	}
	var n int64
	for _, id := range ids {
		changed, err := r.deactivate(ctx, id, now)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	return r.revokeSet(ctx, r.familyKey(familyID), now)
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return r.revokeSet(ctx, r.userKey(userID), now)
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]models.Session, error) {
	userKey := r.userKey(userID)
	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, unavailable("session members", err)
	}
	var res []models.Session
	for _, id := range ids {
		s, err := r.load(ctx, r.client, id)
		if errors.Is(err, repositories.ErrNotFound) {
			_ = r.client.SRem(ctx, userKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Active && now.Before(s.ExpiresAt) {
			res = append(res, *s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// DeleteExpired is a no-op: session keys expire on their own.
func (r *SessionRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
