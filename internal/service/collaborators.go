package service

import (
	"context"

	"github.com/Gopher0727/BirthdayBox/internal/pkg/notify"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/payment"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
)

// TextGenerator returns free-form text for one set of instructions.
type TextGenerator interface {
	GenerateText(ctx context.Context, in prompt.Instructions) (string, error)
}

// ImageGenerator returns the URL of one generated image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, purchaseID int64, email string) (*payment.Intent, error)
	ParseWebhook(payload []byte, signature string) (*payment.Event, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, e notify.Email) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, m notify.SMS) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
