package services

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"samadhaan/internal/models"
)

// EmailService отправляет оповещения безопасности дежурным по SMTP.
type EmailService struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, toEmail string) *EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &EmailService{
		dialer: dialer,
		from:   fromEmail,
		to:     toEmail,
	}
}

func (s *EmailService) Name() string { return "email" }

func (s *EmailService) message(ev models.SecurityEvent) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", fmt.Sprintf("[samadhaan] security alert: %s", ev.Kind))

	body := fmt.Sprintf(`
		<h3>Security alert: %s</h3>
		<p>User: %d<br>Phone: %s<br>Session family: %s</p>
		<p>%s</p>
		<p>At: %s</p>
	`, html.EscapeString(string(ev.Kind)), ev.UserID, html.EscapeString(ev.Phone),
		html.EscapeString(ev.FamilyID), html.EscapeString(ev.Detail), ev.At.UTC().Format("2006-01-02 15:04:05 MST"))

	m.SetBody("text/html", body)
	return m
}

// Deliver ignores ctx: gomail has no cancellable dial. The alert worker
// calls it off the request path.
func (s *EmailService) Deliver(_ context.Context, ev models.SecurityEvent) error {
	if err := s.dialer.DialAndSend(s.message(ev)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}
