package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"samadhaan/internal/models"
)

// KEYS = one counter per window; ARGV = limit, ttl_ms pairs in the same order.
// Returns 0 when every counter was incremented, otherwise the 1-based index
// of the first window already at its limit.
var consumeWindowsLua = redis.NewScript(`
for i, key in ipairs(KEYS) do
  local count = tonumber(redis.call('GET', key) or '0')
  if count >= tonumber(ARGV[(i - 1) * 2 + 1]) then
    return i
  end
end
for i, key in ipairs(KEYS) do
  local c = redis.call('INCR', key)
  if c == 1 then
    redis.call('PEXPIRE', key, ARGV[(i - 1) * 2 + 2])
  end
end
return 0
`)

type RateWindowRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRateWindowRepository(client redis.UniversalClient, prefix string) *RateWindowRepository {
	return &RateWindowRepository{client: client, prefix: prefix}
}

// key includes the window length: at 00:00 UTC the minute and day windows
// start at the same instant.
func (r *RateWindowRepository) key(scopeKey string, w models.WindowLimit) string {
	return r.prefix + "rate:" + scopeKey + ":" + strconv.FormatInt(int64(w.Length/time.Second), 10) +
		":" + strconv.FormatInt(w.Start.Unix(), 10)
}

func (r *RateWindowRepository) Consume(ctx context.Context, scopeKey string, windows []models.WindowLimit) (*models.WindowLimit, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(windows))
	args := make([]any, 0, 2*len(windows))
	for _, w := range windows {
		keys = append(keys, r.key(scopeKey, w))
		// The key embeds the window start, so twice the length always
		// outlives the window no matter when the first hit lands.
		args = append(args, w.Limit, (2 * w.Length).Milliseconds())
	}

	idx, err := consumeWindowsLua.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return nil, unavailable("rate consume", err)
	}
	if idx == 0 {
		return nil, nil
	}
	blocked := windows[idx-1]
	return &blocked, nil
}

// DeleteBefore is a no-op: counters expire on their own.
func (r *RateWindowRepository) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
