package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID = "user_id"
	CtxPhone  = "phone"
)

// AccessVerifier проверяет access-токен и возвращает владельца.
type AccessVerifier interface {
	Authenticate(token string) (userID int64, phone string, err error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": msg})
}

// bearerToken достаёт токен из "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tokenStr := strings.TrimSpace(parts[1])
	return tokenStr, tokenStr != ""
}

func AuthMiddleware(v AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenStr, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "missing or invalid Authorization header")
			return
		}

		userID, phone, err := v.Authenticate(tokenStr)
		if err != nil {
			log.Printf("[auth][bearer] rejected path=%s err=%v", c.FullPath(), err)
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxPhone, phone)
		c.Next()
	}
}
