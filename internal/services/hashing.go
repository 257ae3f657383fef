package services

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type hashResult struct {
	hash []byte
	err  error
}

// hashCode runs bcrypt off the request goroutine so a cancelled context
// returns immediately. The buffered channel lets the worker finish and exit.
func hashCode(ctx context.Context, code string, cost int) (string, error) {
	done := make(chan hashResult, 1)
	go func() {
		h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
		done <- hashResult{hash: h, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return string(r.hash), nil
	}
}

// codeMatches reports false on mismatch and an error only for a broken hash
// or a cancelled context.
func codeMatches(ctx context.Context, hash, code string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-done:
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}
}
