package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"samadhaan/internal/app"
	"samadhaan/internal/config"
)

// @title        Samadhaan Auth API
// @version      1.0
// @description  Вход по номеру телефона: одноразовый код из SMS и пара JWT access/refresh.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg := config.LoadConfig()
	log.SetPrefix("[AUTH] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
