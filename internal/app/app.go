package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "samadhaan/docs"
	"samadhaan/internal/config"
	"samadhaan/internal/handlers"
	"samadhaan/internal/repositories"
	"samadhaan/internal/repositories/memory"
	"samadhaan/internal/repositories/redisstore"
	"samadhaan/internal/routes"
	"samadhaan/internal/services"
)

// stores — выбранная по store.driver реализация хранилищ и их healthcheck-и.
type stores struct {
	challenges repositories.OTPChallengeRepository
	windows    repositories.RateWindowRepository
	sessions   repositories.SessionRepository
	users      repositories.UserRepository
	checks     map[string]handlers.HealthCheck
	closers    []func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{checks: map[string]handlers.HealthCheck{}}

	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Printf("[app][store] driver=memory (state is lost on restart)")
		st.challenges = memory.NewOTPChallengeRepository()
		st.windows = memory.NewRateWindowRepository()
		st.sessions = memory.NewSessionRepository()
		st.users = memory.NewUserRepository()
		return st, nil
	}

	// === DB === каталог пользователей всегда в Postgres
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	st.closers = append(st.closers, db.Close)
	if err := db.PingContext(ctx); err != nil {
		st.close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := repositories.Migrate(ctx, db); err != nil {
		st.close()
		return nil, err
	}
	st.users = repositories.NewUserRepository(db)
	st.checks["postgres"] = db.PingContext

	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			st.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		prefix := cfg.Redis.KeyPrefix
		st.challenges = redisstore.NewOTPChallengeRepository(client, prefix)
		st.windows = redisstore.NewRateWindowRepository(client, prefix)
		st.sessions = redisstore.NewSessionRepository(client, prefix)
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Printf("[app][store] driver=redis addr=%s", cfg.Redis.Addr)
	default:
		st.challenges = repositories.NewOTPChallengeRepository(db)
		st.windows = repositories.NewRateWindowRepository(db)
		st.sessions = repositories.NewSessionRepository(db)
		log.Printf("[app][store] driver=postgres")
	}
	return st, nil
}

func (st *stores) close() {
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](); err != nil {
			log.Printf("[app][store] close: %v", err)
		}
	}
}

func alertChannels(cfg *config.Config) []services.AlertChannel {
	var channels []services.AlertChannel
	if e := cfg.Alerts.Email; e.SMTPHost != "" && e.ToEmail != "" {
		channels = append(channels, services.NewEmailService(e.SMTPHost, e.SMTPPort, e.SMTPUser, e.SMTPPassword, e.FromEmail, e.ToEmail))
	}
	if tg := cfg.Alerts.Telegram; tg.BotToken != "" && tg.ChatID != 0 {
		svc, err := services.NewTelegramService(tg.BotToken, tg.ChatID, "")
		if err != nil {
			// без Telegram сервис работает, события останутся в логе
			log.Printf("[app][alerts] telegram disabled: %v", err)
		} else {
			channels = append(channels, svc)
		}
	}
	return channels
}

// Run поднимает HTTP-сервер и фоновые воркеры; возвращается после отмены ctx.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.DeliveryBypass() {
		log.Printf("[app][otp] WARNING: delivery bypass active (otp.delivery=%s), codes do not go through SMS", cfg.OTP.Delivery)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// === Services ===
	alerts := services.NewAlertService(cfg.Alerts.Buffer, alertChannels(cfg)...)
	workers, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	alertsDone := make(chan struct{})
	go func() {
		alerts.Run(workers)
		close(alertsDone)
	}()

	limiter := services.NewRateLimiter(st.windows, nil)
	otp := services.NewOTPService(st.challenges, limiter, services.NewSMSSender(cfg), alerts, services.OTPConfig{
		Expiry:           time.Duration(cfg.OTP.ExpiryMinutes) * time.Minute,
		MaxAttempts:      cfg.OTP.MaxAttempts,
		PerMinuteLimit:   cfg.OTP.PerMinuteLimit,
		PerDayLimit:      cfg.OTP.PerDayLimit,
		IPPerMinuteLimit: cfg.OTP.IPPerMinuteLimit,
		IPPerDayLimit:    cfg.OTP.IPPerDayLimit,
		ResendCooldown:   time.Duration(cfg.OTP.ResendCooldownSeconds) * time.Second,
		BcryptCost:       cfg.OTP.BcryptCost,
	}, nil)

	tokens, err := services.NewTokenService(services.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Issuer:        cfg.JWT.Issuer,
	}, nil)
	if err != nil {
		return err
	}
	sessions := services.NewSessionService(st.sessions, tokens, alerts, services.SessionConfig{
		ReuseDetection: cfg.Session.ReuseDetection,
		ReuseGrace:     cfg.Session.ReuseGrace,
	}, nil)
	authService := services.NewAuthService(otp, sessions, tokens, st.users, cfg.App.DependencyTimeout)

	sweeper := services.NewSweeper(st.challenges, st.windows, st.sessions, nil)
	go sweeper.Run(workers, cfg.App.SweepInterval)

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router,
		handlers.NewAuthHandler(authService),
		handlers.NewHealthHandler(st.checks),
		authService,
	)

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[app][http] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[app][http] shutdown: %v", err)
	}
	stopWorkers()
	<-alertsDone
	log.Printf("[app] stopped")
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
