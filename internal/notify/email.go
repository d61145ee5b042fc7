package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
)

// EmailSender sends one plain-text email
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds SMTP relay settings
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPEmailSender delivers mail through an SMTP relay
type SMTPEmailSender struct {
	config SMTPConfig
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTPEmailSender(config SMTPConfig) *SMTPEmailSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &SMTPEmailSender{
		config: config,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendEmail sends the message, giving up when ctx is done
func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}

	e := email.NewEmail()
	e.From = s.config.From
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.send(e, addr, auth)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", to, ctx.Err())
	}
}
