package services

import (
	"context"
	"errors"
	"log"

	"samadhaan/internal/models"
)

var ErrAlertQueueFull = errors.New("alert queue full")

// SecurityNotifier принимает события безопасности (reuse refresh-токена, сбой SMS-шлюза).
type SecurityNotifier interface {
	Notify(ctx context.Context, ev models.SecurityEvent) error
}

type AlertChannel interface {
	Name() string
	Deliver(ctx context.Context, ev models.SecurityEvent) error
}

// AlertService — очередь событий и один воркер, который разносит их по каналам.
// Notify не блокирует запрос: при переполнении событие теряется с ошибкой.
type AlertService struct {
	queue    chan models.SecurityEvent
	channels []AlertChannel
}

func NewAlertService(buffer int, channels ...AlertChannel) *AlertService {
	if buffer <= 0 {
		buffer = 64
	}
	return &AlertService{
		queue:    make(chan models.SecurityEvent, buffer),
		channels: channels,
	}
}

func (a *AlertService) Notify(_ context.Context, ev models.SecurityEvent) error {
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrAlertQueueFull
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (a *AlertService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.queue:
					a.dispatch(context.Background(), ev)
				default:
					return
				}
			}
		case ev := <-a.queue:
			a.dispatch(ctx, ev)
		}
	}
}

func (a *AlertService) dispatch(ctx context.Context, ev models.SecurityEvent) {
	log.Printf("[alert][%s] user_id=%d phone=%s family=%s detail=%q", ev.Kind, ev.UserID, ev.Phone, ev.FamilyID, ev.Detail)
	for _, ch := range a.channels {
		if err := ch.Deliver(ctx, ev); err != nil {
			log.Printf("[alert][%s] channel=%s err=%v", ev.Kind, ch.Name(), err)
		}
	}
}
