package routes

import (
	"github.com/gin-gonic/gin"

	"samadhaan/internal/handlers"
	"samadhaan/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	verifier middleware.AccessVerifier,
) *gin.Engine {
	r.GET("/healthz", healthHandler.Healthz)

	auth := r.Group("/api/v1/auth")
	{
		// ---- public
		auth.POST("/login", authHandler.Login)
		auth.POST("/verify", authHandler.Verify)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)

		// ---- protected (Bearer access-токен)
		protected := auth.Group("", middleware.AuthMiddleware(verifier))
		{
			protected.POST("/logout/all", authHandler.LogoutAll)
			protected.GET("/me", authHandler.Me)
			protected.GET("/sessions", authHandler.Sessions)
		}
	}

	return r
}
