// Package email delivers notifications over SMTP, or to the log when SMTP is off.
package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, n *model.Notification) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg Config) *SMTPService {
	return &SMTPService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPService) Send(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(BuildMessage(s.from, n)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.To, err)
	}
	return nil
}

// BuildMessage renders n as a plain-text message.
func BuildMessage(from string, n *model.Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.Body)
	return m
}

// LogService writes notifications to the log instead of mailing them.
type LogService struct {
	logger *logger.Logger
}

func NewLogService(l *logger.Logger) *LogService {
	if l == nil {
		l = logger.Nop()
	}
	return &LogService{logger: l.With("component", "email")}
}

func (s *LogService) Send(ctx context.Context, n *model.Notification) error {
	s.logger.Info("email suppressed", "to", n.To, "subject", n.Subject)
	return nil
}
