package repositories

import "errors"

var (
	// ErrNotFound — запись отсутствует (или уже неактивна, для сессий).
	ErrNotFound = errors.New("record not found")
	// ErrExpired is returned by session rotation when the active row is past its expiry.
	ErrExpired = errors.New("record expired")
	// ErrConflict is returned when a unique key already exists.
	ErrConflict = errors.New("record already exists")
)
