// Package payment creates charge intents with Stripe and verifies the
// asynchronous confirmations Stripe sends back.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

// MetadataPurchaseID links an intent back to the purchase it pays for.
const MetadataPurchaseID = "purchase_id"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventSucceeded
	EventFailed
)

// Event is a verified webhook reduced to what the purchase lifecycle needs.
// PurchaseID is zero when the intent carries no usable metadata.
type Event struct {
	ID         string
	Type       string
	Kind       EventKind
	IntentID   string
	PurchaseID int64
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	amount        int64
	currency      string
	logger        *zap.Logger
}

func NewStripeGateway(cfg config.PaymentConfig, logger *zap.Logger) *StripeGateway {
	return NewStripeGatewayWithBackends(cfg, nil, logger)
}

// NewStripeGatewayWithBackends lets tests point the client at a local server.
func NewStripeGatewayWithBackends(cfg config.PaymentConfig, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		amount:        cfg.Amount,
		currency:      cfg.Currency,
		logger:        logger,
	}
}

// CreateIntent opens a payment intent for the fixed bundle price.
func (g *StripeGateway) CreateIntent(ctx context.Context, purchaseID int64, email string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(g.amount),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata(MetadataPurchaseID, strconv.FormatInt(purchaseID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("purchase-%d-intent", purchaseID))

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.logger.Info("payment intent created",
		zap.Int64("purchase_id", purchaseID),
		zap.String("intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
	)
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment
// intent events. Other event types come back as EventIgnored.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Kind = EventSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		out.Kind = EventFailed
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	if raw, ok := pi.Metadata[MetadataPurchaseID]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			out.PurchaseID = id
		}
	}
	return out, nil
}
