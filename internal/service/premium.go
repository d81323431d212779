package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Gopher0727/BirthdayBox/internal/metrics"
	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

const (
	defaultPremiumCount = 5
	bundleSendTimeout   = 30 * time.Second
)

type IPremiumService interface {
	Expand(ctx context.Context, messageID, purchaseID int64) ([]*model.PremiumMessage, error)
}

type ExpandRequest struct {
	MessageID  int64 `json:"messageId" binding:"required"`
	PurchaseID int64 `json:"purchaseId" binding:"required"`
}

// BundleSender delivers a finished premium bundle. Optional.
type BundleSender interface {
	SendBundle(ctx context.Context, purchase *model.Purchase, original *model.Message, premium []*model.PremiumMessage) error
}

type PremiumService struct {
	store  repository.Store
	text   TextGenerator
	bundle BundleSender
	events EventPublisher
	count  int
	group  singleflight.Group
	logger *zap.Logger
}

func NewPremiumService(store repository.Store, text TextGenerator, bundle BundleSender, events EventPublisher, count int, logger *zap.Logger) IPremiumService {
	if events == nil {
		events = NopPublisher{}
	}
	if count <= 0 {
		count = defaultPremiumCount
	}
	return &PremiumService{
		store:  store,
		text:   text,
		bundle: bundle,
		events: events,
		count:  count,
		logger: logger.Named("premium"),
	}
}

// Expand returns the premium variants for a completed purchase, generating
// them on the first call. At most one batch ever exists per purchase:
// concurrent callers in this process share one generation, and the store
// rejects a second batch from any other process.
func (s *PremiumService) Expand(ctx context.Context, messageID, purchaseID int64) ([]*model.PremiumMessage, error) {
	if messageID <= 0 || purchaseID <= 0 {
		return nil, invalid("messageId and purchaseId must be positive integers")
	}

	original, err := s.store.Messages.FindByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("message", messageID)
	}
	if err != nil {
		return nil, persistence("find message", err)
	}

	purchase, err := s.store.Purchases.FindByID(ctx, purchaseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("purchase", purchaseID)
	}
	if err != nil {
		return nil, persistence("find purchase", err)
	}
	if purchase.Status != model.PurchaseCompleted {
		return nil, ErrPurchaseNotCompleted
	}
	if purchase.OriginalMessageID != messageID {
		return nil, ErrMessageMismatch
	}

	existing, err := s.existing(ctx, purchaseID)
	if err != nil || existing != nil {
		return existing, err
	}

	// The shared call must not die with whichever request started it.
	v, err, _ := s.group.Do(strconv.FormatInt(purchaseID, 10), func() (any, error) {
		return s.generate(logger.Detach(ctx), purchase, original)
	})
	if err != nil {
		metrics.ExpansionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return v.([]*model.PremiumMessage), nil
}

func (s *PremiumService) existing(ctx context.Context, purchaseID int64) ([]*model.PremiumMessage, error) {
	rows, err := s.store.Premium.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, persistence("list premium messages", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	metrics.ExpansionsTotal.WithLabelValues("existing").Inc()
	return rows, nil
}

func (s *PremiumService) generate(ctx context.Context, purchase *model.Purchase, original *model.Message) ([]*model.PremiumMessage, error) {
	// another caller may have finished between the first check and Do
	existing, err := s.existing(ctx, purchase.ID)
	if err != nil || existing != nil {
		return existing, err
	}

	recipient := prompt.Recipient{
		Name:             original.RecipientName,
		RelationshipRole: original.RelationshipRole,
		Personality:      original.Personality,
		Quirks:           original.Quirks,
		Gender:           original.RecipientGender,
	}

	start := time.Now()
	text, err := s.text.GenerateText(ctx, prompt.PremiumInstructions(recipient, original.Content, s.count))
	metrics.GenerationDuration.WithLabelValues("premium").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("premium", "error").Inc()
		s.logger.Error("premium generation failed", logger.PurchaseID(purchase.ID), zap.Error(err))
		return nil, errors.Join(ErrGeneration, err)
	}

	variants := prompt.ParseNumberedList(text, s.count)
	metrics.PremiumRecovered.Observe(float64(len(variants)))
	if len(variants) == 0 {
		metrics.GenerationsTotal.WithLabelValues("premium", "error").Inc()
		s.logger.Error("premium response had no usable variants", logger.PurchaseID(purchase.ID))
		return nil, ErrGeneration
	}
	metrics.GenerationsTotal.WithLabelValues("premium", "ok").Inc()
	if len(variants) < s.count {
		s.logger.Warn("premium response partly recovered",
			logger.PurchaseID(purchase.ID), zap.Int("recovered", len(variants)), zap.Int("want", s.count))
	}

	rows, err := s.store.Premium.CreateBatch(ctx, purchase.ID, variants)
	switch {
	case errors.Is(err, repository.ErrBatchExists):
		// lost the race to another process; theirs is the batch
		return s.existing(ctx, purchase.ID)
	case err != nil:
		return nil, persistence("create premium batch", err)
	}

	metrics.ExpansionsTotal.WithLabelValues("created").Inc()
	s.logger.Info("premium bundle created", logger.PurchaseID(purchase.ID), zap.Int("count", len(rows)))
	emit(ctx, s.events, s.logger, Event{
		Type:       EventPremiumExpanded,
		PurchaseID: purchase.ID,
		MessageID:  original.ID,
		Count:      len(rows),
	})
	s.sendBundle(ctx, purchase, original, rows)
	return rows, nil
}

func (s *PremiumService) sendBundle(ctx context.Context, purchase *model.Purchase, original *model.Message, rows []*model.PremiumMessage) {
	if s.bundle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, bundleSendTimeout)
	defer cancel()
	if err := s.bundle.SendBundle(ctx, purchase, original, rows); err != nil {
		s.logger.Warn("bundle delivery failed", logger.PurchaseID(purchase.ID), zap.Error(err))
	}
}
