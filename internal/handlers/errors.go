package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"samadhaan/internal/services"
)

// ErrorResponse — единый конверт ошибок API.
type ErrorResponse struct {
	Code    string `json:"code" example:"invalid_code"`
	Message string `json:"message" example:"the code is incorrect"`
}

type errorKind struct {
	target  error
	status  int
	code    string
	message string
}

// Порядок важен: первое совпадение по errors.Is.
var errorKinds = []errorKind{
	{services.ErrValidation, http.StatusBadRequest, "validation_error", ""},
	{services.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later"},
	{services.ErrChallengeNotFound, http.StatusBadRequest, "challenge_not_found", "challenge not found, request a new code"},
	{services.ErrChallengeExpired, http.StatusGone, "challenge_expired", "the code has expired, request a new one"},
	{services.ErrInvalidCode, http.StatusBadRequest, "invalid_code", "the code is incorrect"},
	{services.ErrAttemptsExceeded, http.StatusBadRequest, "attempts_exceeded", "too many attempts, request a new code"},
	{services.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is invalid, sign in again"},
	{services.ErrSessionNotFound, http.StatusUnauthorized, "session_not_found", "session not found, sign in again"},
	{services.ErrSessionExpired, http.StatusUnauthorized, "session_expired", "session expired, sign in again"},
	{services.ErrTokenExpired, http.StatusUnauthorized, "unauthorized", "invalid or expired token"},
	{services.ErrTokenMalformed, http.StatusUnauthorized, "unauthorized", "invalid or expired token"},
	{services.ErrTokenWrongType, http.StatusUnauthorized, "unauthorized", "invalid or expired token"},
	{services.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{services.ErrDependencyFailure, http.StatusServiceUnavailable, "dependency_failure", "service temporarily unavailable, retry"},
}

func classify(err error) (int, ErrorResponse) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			msg := k.message
			if msg == "" {
				msg = err.Error()
			}
			return k.status, ErrorResponse{Code: k.code, Message: msg}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: "internal error"}
}

// respondError пишет конверт; внутренние детали уходят только в лог.
func respondError(c *gin.Context, op string, err error) {
	status, body := classify(err)

	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[auth][%s] status=%d err=%v", op, status, err)
	} else {
		log.Printf("[auth][%s] rejected code=%s", op, body.Code)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, op string, err error) {
	log.Printf("[auth][%s] bad request: bind json failed: err=%v", op, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "validation_error", Message: "invalid request body"})
}
