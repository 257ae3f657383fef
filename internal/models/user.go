package models

import "time"

// User — минимальное представление пользователя из каталога: только id и телефон.
type User struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"-"`
}

type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Profile struct {
	ID    int64          `json:"id"`
	Phone string         `json:"phone"`
	Orgs  []Organization `json:"orgs"`
}

type LoginRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type VerifyRequest struct {
	ChallengeHandle string `json:"challenge_handle" binding:"required"`
	Code            string `json:"code" binding:"required"`
	Device          string `json:"device"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResult is returned by a successful verify.
type AuthResult struct {
	Tokens *TokenPair
	User   *User
}

// VerifyResponse — тело ответа на успешный verify.
type VerifyResponse struct {
	TokenPair
	User *User `json:"user"`
}
