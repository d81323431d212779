// Package notify sends messages through SendGrid email and Twilio SMS.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

var ErrRejected = errors.New("provider rejected the message")

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type EmailSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	logger   *zap.Logger
}

func NewEmailSender(cfg config.EmailConfig, logger *zap.Logger) *EmailSender {
	return NewEmailSenderWithHost(cfg, "", logger)
}

// NewEmailSenderWithHost targets a different API host; empty means SendGrid.
func NewEmailSenderWithHost(cfg config.EmailConfig, host string, logger *zap.Logger) *EmailSender {
	req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", host)
	req.Method = "POST"
	return &EmailSender{
		client:   &sendgrid.Client{Request: req},
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   logger,
	}
}

func (s *EmailSender) SendEmail(ctx context.Context, e Email) error {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", e.To)
	msg := mail.NewSingleEmail(from, e.Subject, to, e.Text, e.HTML)

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		s.logger.Warn("sendgrid rejected email",
			zap.Int("status", resp.StatusCode),
			zap.String("body", resp.Body),
		)
		return fmt.Errorf("%w: sendgrid status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
