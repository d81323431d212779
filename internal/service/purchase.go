package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/metrics"
	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/payment"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/utils"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

// Sources recorded for every status change.
const (
	SourceTestBypass = "test_bypass"
	SourceSimulate   = "simulate"
	SourceWebhook    = "webhook"
	SourceRetry      = "payment_retry"
)

type IPurchaseService interface {
	CreatePurchase(ctx context.Context, email string, messageID int64) (*model.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*PurchaseDetails, error)
	MarkCompleted(ctx context.Context, id int64, source string) (*model.Purchase, error)
	MarkFailed(ctx context.Context, id int64, source string) (*model.Purchase, error)
	CompleteTestPurchase(ctx context.Context, id int64) (*model.Purchase, error)
	CreatePaymentIntent(ctx context.Context, id int64) (*PaymentIntentResult, error)
	HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error
}

type CreatePurchaseRequest struct {
	Email     string `json:"email" binding:"required,max=255"`
	MessageID int64  `json:"messageId" binding:"required"`
}

type CompletePurchaseRequest struct {
	PurchaseID int64 `json:"purchaseId" binding:"required"`
}

// PurchaseDetails is a purchase with its premium batch (ordered, never nil)
// and the message it was bought for, when that message still exists.
type PurchaseDetails struct {
	Purchase        *model.Purchase
	PremiumMessages []*model.PremiumMessage
	OriginalMessage *model.Message
}

// PaymentIntentResult is what the client needs to confirm a charge. With the
// simulated provider no intent exists and Simulated is set instead.
type PaymentIntentResult struct {
	PaymentIntentID string
	ClientSecret    string
	Amount          int64
	Currency        string
	Status          model.PurchaseStatus
	Simulated       bool
}

type PurchaseService struct {
	store   repository.Store
	gateway PaymentGateway
	events  EventPublisher
	cfg     config.PaymentConfig
	logger  *zap.Logger
}

// NewPurchaseService wires the lifecycle. gateway may be nil only with the
// simulated provider.
func NewPurchaseService(store repository.Store, gateway PaymentGateway, events EventPublisher, cfg config.PaymentConfig, logger *zap.Logger) IPurchaseService {
	if events == nil {
		events = NopPublisher{}
	}
	return &PurchaseService{
		store:   store,
		gateway: gateway,
		events:  events,
		cfg:     cfg,
		logger:  logger.Named("purchase"),
	}
}

func (s *PurchaseService) CreatePurchase(ctx context.Context, email string, messageID int64) (*model.Purchase, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email is required")
	}
	if !utils.ValidateEmail(email) {
		return nil, invalid("email is not a valid email address")
	}
	if messageID <= 0 {
		return nil, invalid("messageId must be a positive integer")
	}

	if _, err := s.store.Messages.FindByID(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("message", messageID)
		}
		return nil, persistence("find message", err)
	}

	purchase := &model.Purchase{Email: email, OriginalMessageID: messageID, Status: model.PurchasePending}
	if err := s.store.Purchases.Create(ctx, purchase); err != nil {
		if errors.Is(err, repository.ErrReference) {
			return nil, notFound("message", messageID)
		}
		return nil, persistence("create purchase", err)
	}

	s.logger.Info("purchase created",
		logger.PurchaseID(purchase.ID),
		logger.MessageID(messageID),
	)
	emit(ctx, s.events, s.logger, Event{
		Type:       EventPurchaseStatusChanged,
		PurchaseID: purchase.ID,
		MessageID:  messageID,
		Status:     model.PurchasePending,
	})
	return purchase, nil
}

func (s *PurchaseService) GetPurchase(ctx context.Context, id int64) (*PurchaseDetails, error) {
	purchase, err := s.findPurchase(ctx, id)
	if err != nil {
		return nil, err
	}

	premium, err := s.store.Premium.ListByPurchase(ctx, id)
	if err != nil {
		return nil, persistence("list premium messages", err)
	}
	if premium == nil {
		premium = []*model.PremiumMessage{}
	}

	original, err := s.store.Messages.FindByID(ctx, purchase.OriginalMessageID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		original = nil
	case err != nil:
		return nil, persistence("find message", err)
	}

	return &PurchaseDetails{Purchase: purchase, PremiumMessages: premium, OriginalMessage: original}, nil
}

// MarkCompleted moves a pending purchase to completed. Repeating it is a
// no-op that returns the purchase; completing a failed purchase is refused.
// Only the call that actually changes the status publishes an event.
func (s *PurchaseService) MarkCompleted(ctx context.Context, id int64, source string) (*model.Purchase, error) {
	return s.transition(ctx, id, []model.PurchaseStatus{model.PurchasePending}, model.PurchaseCompleted, source)
}

// MarkFailed mirrors MarkCompleted for a declined charge.
func (s *PurchaseService) MarkFailed(ctx context.Context, id int64, source string) (*model.Purchase, error) {
	return s.transition(ctx, id, []model.PurchaseStatus{model.PurchasePending}, model.PurchaseFailed, source)
}

func (s *PurchaseService) transition(ctx context.Context, id int64, from []model.PurchaseStatus, to model.PurchaseStatus, source string) (*model.Purchase, error) {
	if id <= 0 {
		return nil, invalid("purchaseId must be a positive integer")
	}

	changed, err := s.store.Purchases.TransitionStatus(ctx, id, from, to)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("purchase", id)
	}
	if err != nil {
		return nil, persistence("update purchase status", err)
	}

	purchase, err := s.findPurchase(ctx, id)
	if err != nil {
		return nil, err
	}

	if !changed {
		if purchase.Status == to {
			s.logger.Debug("repeated status change ignored",
				logger.PurchaseID(id), logger.Status(string(to)), zap.String("source", source))
			return purchase, nil
		}
		s.logger.Warn("status change refused",
			logger.PurchaseID(id),
			zap.String("current", string(purchase.Status)),
			zap.String("requested", string(to)),
			zap.String("source", source),
		)
		return nil, ErrInvalidTransition
	}

	metrics.PurchaseTransitions.WithLabelValues(string(to), source).Inc()
	s.logger.Info("purchase status changed",
		logger.PurchaseID(id), logger.Status(string(to)), zap.String("source", source))
	emit(ctx, s.events, s.logger, Event{
		Type:       EventPurchaseStatusChanged,
		PurchaseID: id,
		MessageID:  purchase.OriginalMessageID,
		Status:     to,
		Source:     source,
	})
	return purchase, nil
}

// CompleteTestPurchase completes without payment. It exists for demos and
// is refused unless explicitly enabled.
func (s *PurchaseService) CompleteTestPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	if !s.cfg.AllowTestBypass {
		return nil, ErrBypassDisabled
	}
	return s.MarkCompleted(ctx, id, SourceTestBypass)
}

// CreatePaymentIntent opens a charge for a pending purchase. A failed
// purchase is reopened first so a declined customer can pay again. With the
// simulated provider the purchase is completed on the spot.
func (s *PurchaseService) CreatePaymentIntent(ctx context.Context, id int64) (*PaymentIntentResult, error) {
	purchase, err := s.findPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	switch purchase.Status {
	case model.PurchasePending:
	case model.PurchaseFailed:
		purchase, err = s.transition(ctx, id, []model.PurchaseStatus{model.PurchaseFailed}, model.PurchasePending, SourceRetry)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidTransition
	}

	if s.gateway == nil {
		completed, err := s.MarkCompleted(ctx, id, SourceSimulate)
		if err != nil {
			return nil, err
		}
		return &PaymentIntentResult{
			Amount:    s.cfg.Amount,
			Currency:  s.cfg.Currency,
			Status:    completed.Status,
			Simulated: true,
		}, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, id, purchase.Email)
	if err != nil {
		s.logger.Error("payment intent failed", logger.PurchaseID(id), zap.Error(err))
		return nil, errors.Join(ErrPaymentUnavailable, err)
	}
	if err := s.store.Purchases.SetPaymentIntent(ctx, id, intent.ID); err != nil {
		return nil, persistence("store payment intent", err)
	}

	return &PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Status:          model.PurchasePending,
	}, nil
}

// HandlePaymentWebhook applies a verified payment confirmation. Events that
// cannot be correlated or would be refused are acknowledged so the provider
// stops retrying; only storage failures are returned.
func (s *PurchaseService) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return ErrPaymentUnavailable
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return invalid("invalid webhook signature")
		}
		return invalid("malformed webhook payload")
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if event.Kind == payment.EventIgnored {
		log.Debug("webhook event ignored")
		return nil
	}

	purchaseID, err := s.correlate(ctx, event)
	if err != nil {
		return err
	}
	if purchaseID == 0 {
		log.Warn("webhook event matches no purchase", zap.String("intent_id", event.IntentID))
		return nil
	}

	switch event.Kind {
	case payment.EventSucceeded:
		// A decline does not close the intent; a later success on it still
		// means the customer was charged.
		_, err = s.transition(ctx, purchaseID,
			[]model.PurchaseStatus{model.PurchasePending, model.PurchaseFailed}, model.PurchaseCompleted, SourceWebhook)
	case payment.EventFailed:
		_, err = s.MarkFailed(ctx, purchaseID, SourceWebhook)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
		log.Warn("webhook event not applied", logger.PurchaseID(purchaseID), zap.Error(err))
		return nil
	}
	return err
}

// correlate prefers the purchase id carried in the intent metadata and falls
// back to the stored intent id.
func (s *PurchaseService) correlate(ctx context.Context, event *payment.Event) (int64, error) {
	if event.PurchaseID > 0 {
		return event.PurchaseID, nil
	}
	if event.IntentID == "" {
		return 0, nil
	}
	purchase, err := s.store.Purchases.FindByPaymentIntent(ctx, event.IntentID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, persistence("find purchase by intent", err)
	}
	return purchase.ID, nil
}

func (s *PurchaseService) findPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	if id <= 0 {
		return nil, invalid("purchase id must be a positive integer")
	}
	purchase, err := s.store.Purchases.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("purchase", id)
	}
	if err != nil {
		return nil, persistence("find purchase", err)
	}
	return purchase, nil
}
