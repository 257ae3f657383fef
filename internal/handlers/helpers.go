package handlers

import "github.com/gin-gonic/gin"

// middleware.AuthMiddleware кладёт user_id только как int64
func getInt64FromCtx(c *gin.Context, key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
