package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

const (
	EventMessageCreated        = "message.created"
	EventPurchaseStatusChanged = "purchase.status_changed"
	EventPremiumExpanded       = "premium.expanded"
)

// Event is the payload published for every state change.
type Event struct {
	Type       string               `json:"type"`
	MessageID  int64                `json:"messageId,omitempty"`
	PurchaseID int64                `json:"purchaseId,omitempty"`
	Status     model.PurchaseStatus `json:"status,omitempty"`
	Source     string               `json:"source,omitempty"`
	Count      int                  `json:"count,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}

func (e Event) key() string {
	if e.PurchaseID > 0 {
		return fmt.Sprintf("purchase:%d", e.PurchaseID)
	}
	return fmt.Sprintf("message:%d", e.MessageID)
}

// emit publishes best-effort. A failed publish is logged and never fails the
// operation that produced the event.
func emit(ctx context.Context, pub EventPublisher, log *zap.Logger, ev Event) {
	ev.OccurredAt = time.Now().UTC()
	if err := pub.Publish(logger.Detach(ctx), ev.key(), ev); err != nil {
		log.Warn("event publish failed", zap.String("type", ev.Type), zap.String("key", ev.key()), zap.Error(err))
	}
}

// NewCompletionHandler returns the consumer callback that expands the
// premium bundle as soon as a purchase completes, so the bundle exists even
// if the client never comes back. Expand is idempotent, so redelivered or
// duplicate events are harmless.
func NewCompletionHandler(purchases repository.IPurchaseRepository, premium IPremiumService, logger *zap.Logger) func(ctx context.Context, value []byte) error {
	return func(ctx context.Context, value []byte) error {
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			logger.Warn("skipping undecodable event", zap.Error(err))
			return nil
		}
		if ev.Type != EventPurchaseStatusChanged || ev.Status != model.PurchaseCompleted {
			return nil
		}

		purchase, err := purchases.FindByID(ctx, ev.PurchaseID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("completed purchase vanished", zap.Int64("purchase_id", ev.PurchaseID))
			return nil
		}
		if err != nil {
			return err
		}

		_, err = premium.Expand(ctx, purchase.OriginalMessageID, purchase.ID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrPurchaseNotCompleted), errors.Is(err, ErrMessageMismatch):
			// retrying cannot fix these
			logger.Warn("background expansion skipped", zap.Int64("purchase_id", purchase.ID), zap.Error(err))
			return nil
		default:
			return err
		}
	}
}
