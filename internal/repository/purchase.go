package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/BirthdayBox/internal/model"
)

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) IPurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	if purchase.Status == "" {
		purchase.Status = model.PurchasePending
	}
	return translate(r.db.WithContext(ctx).Omit("OriginalMessage").Create(purchase).Error)
}

func (r *PurchaseRepository) FindByID(ctx context.Context, id int64) (*model.Purchase, error) {
	var purchase model.Purchase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error; err != nil {
		return nil, translate(err)
	}
	return &purchase, nil
}

func (r *PurchaseRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*model.Purchase, error) {
	var purchase model.Purchase
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&purchase).Error; err != nil {
		return nil, translate(err)
	}
	return &purchase, nil
}

func (r *PurchaseRepository) TransitionStatus(ctx context.Context, id int64, from []model.PurchaseStatus, to model.PurchaseStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Nothing matched: distinguish a missing row from a status mismatch.
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Purchase{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *PurchaseRepository) SetPaymentIntent(ctx context.Context, id int64, intentID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("id = ?", id).
		Updates(map[string]any{"payment_intent_id": intentID, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
