package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"samadhaan/internal/config"
	"samadhaan/internal/utils"
)

// SMSSender доставляет код на телефон. Реализации: Mobizon (прод), консоль и файл (dev).
type SMSSender interface {
	Send(ctx context.Context, phone, code string) error
}

// ConsoleSender пишет код в лог. Только для разработки: в production конфиг его не пропустит.
type ConsoleSender struct{}

func (ConsoleSender) Send(_ context.Context, phone, code string) error {
	log.Printf("[sms][console] to=%s code=%s", phone, code)
	return nil
}

// FileSender дописывает коды в файл (удобно для e2e-тестов).
type FileSender struct {
	Path string
	Now  func() time.Time

	mu sync.Mutex
}

func (f *FileSender) Send(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "%s\t%s\t%s\n", now().UTC().Format(time.RFC3339), phone, code); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

// NewSMSSender выбирает канал доставки по otp.delivery.
func NewSMSSender(cfg *config.Config) SMSSender {
	switch cfg.OTP.Delivery {
	case config.DeliveryConsole:
		return ConsoleSender{}
	case config.DeliveryFile:
		return &FileSender{Path: cfg.OTP.DeliveryFile}
	default:
		return utils.NewClientWithOptions(utils.ClientOptions{
			APIKey:   cfg.Mobizon.APIKey,
			Sender:   cfg.Mobizon.SenderID,
			DryRun:   cfg.Mobizon.DryRun,
			BaseURL:  cfg.Mobizon.BaseURL,
			Template: cfg.Mobizon.Template,
			Timeout:  cfg.Mobizon.Timeout,
		})
	}
}
