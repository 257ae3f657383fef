package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrInvalidCode       = errors.New("invalid code")
	ErrAttemptsExceeded  = errors.New("attempts exceeded")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenWrongType = errors.New("token has wrong type")

	ErrUserNotFound = errors.New("user not found")

	// ErrDependencyFailure — SMS-шлюз или хранилище недоступны; запрос можно повторить.
	ErrDependencyFailure = errors.New("dependency failure")
)

// RateLimitError says which scope blocked the request and when its window ends.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// RetryAfterSeconds rounds up; never less than 1.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrDependencyFailure, err)
}
