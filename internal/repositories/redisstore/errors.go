package redisstore

import (
	"errors"
	"fmt"
)

// ErrRedisUnavailable wraps transport and server errors.
var ErrRedisUnavailable = errors.New("redis unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrRedisUnavailable, err)
}
