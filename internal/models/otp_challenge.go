package models

import "time"

// OTPChallenge — одна выданная попытка входа по коду из SMS.
// Храним только bcrypt-хэш кода (CodeHash), TTL и счётчик попыток.
type OTPChallenge struct {
	Handle    string    `json:"-"`
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeTicket is what the client gets back from a login request.
type ChallengeTicket struct {
	Handle                string    `json:"challenge_handle"`
	ResendCooldownSeconds int       `json:"resend_cooldown_seconds"`
	ExpiresAt             time.Time `json:"expires_at"`
}
