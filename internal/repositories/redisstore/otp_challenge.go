package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"samadhaan/internal/models"
	"samadhaan/internal/repositories"
)

// Expired challenges stay readable this long so verify can still answer
// "expired" instead of "not found"; after that Redis drops the key.
const defaultChallengeRetention = time.Hour

var createChallengeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1],
  'phone', ARGV[1],
  'code_hash', ARGV[2],
  'expires_at', ARGV[3],
  'attempts', ARGV[4],
  'created_at', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return 1
`)

var incrementAttemptsLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return redis.call('HMGET', KEYS[1], 'phone', 'code_hash', 'expires_at', 'attempts', 'created_at')
`)

type OTPChallengeRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewOTPChallengeRepository(client redis.UniversalClient, prefix string) *OTPChallengeRepository {
	return &OTPChallengeRepository{client: client, prefix: prefix, retention: defaultChallengeRetention}
}

func (r *OTPChallengeRepository) key(handle string) string {
	return r.prefix + "otp:" + handle
}

func (r *OTPChallengeRepository) Create(ctx context.Context, ch *models.OTPChallenge) error {
	ttl := ch.ExpiresAt.Sub(ch.CreatedAt) + r.retention
	if ttl <= 0 {
		ttl = r.retention
	}
	created, err := createChallengeLua.Run(ctx, r.client, []string{r.key(ch.Handle)},
		ch.Phone,
		ch.CodeHash,
		ch.ExpiresAt.UnixNano(),
		ch.Attempts,
		ch.CreatedAt.UnixNano(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable("otp create", err)
	}
	if created == 0 {
		return repositories.ErrConflict
	}
	return nil
}

func (r *OTPChallengeRepository) IncrementAttempts(ctx context.Context, handle string) (*models.OTPChallenge, error) {
	vals, err := incrementAttemptsLua.Run(ctx, r.client, []string{r.key(handle)}).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, unavailable("otp increment attempts", err)
	}
	if len(vals) != 5 {
		return nil, fmt.Errorf("otp increment attempts: unexpected reply length %d", len(vals))
	}

	str := func(i int) string {
		s, _ := vals[i].(string)
		return s
	}
	expiresAt, err := strconv.ParseInt(str(2), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("otp record expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(str(3))
	if err != nil {
		return nil, fmt.Errorf("otp record attempts: %w", err)
	}
	createdAt, err := strconv.ParseInt(str(4), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("otp record created_at: %w", err)
	}

	return &models.OTPChallenge{
		Handle:    handle,
		Phone:     str(0),
		CodeHash:  str(1),
		ExpiresAt: time.Unix(0, expiresAt),
		Attempts:  attempts,
		CreatedAt: time.Unix(0, createdAt),
	}, nil
}

func (r *OTPChallengeRepository) Delete(ctx context.Context, handle string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(handle)).Result()
	if err != nil {
		return false, unavailable("otp delete", err)
	}
	return n > 0, nil
}

// DeleteExpired is a no-op: challenge keys carry their own TTL.
func (r *OTPChallengeRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
