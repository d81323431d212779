package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/BirthdayBox/internal/model"
)

type PremiumMessageRepository struct {
	db *gorm.DB
}

func NewPremiumMessageRepository(db *gorm.DB) IPremiumMessageRepository {
	return &PremiumMessageRepository{db: db}
}

func (r *PremiumMessageRepository) CreateBatch(ctx context.Context, purchaseID int64, contents []string) ([]*model.PremiumMessage, error) {
	if len(contents) == 0 {
		return nil, ErrEmptyBatch
	}

	rows := make([]*model.PremiumMessage, len(contents))
	for i, c := range contents {
		rows[i] = &model.PremiumMessage{PurchaseID: purchaseID, OrderIndex: i + 1, Content: c}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.PremiumMessage{}).Where("purchase_id = ?", purchaseID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrBatchExists
		}
		return tx.Omit("Purchase").Create(&rows).Error
	})
	err = translate(err)
	switch {
	case err == nil:
		return rows, nil
	case errors.Is(err, ErrBatchExists), errors.Is(err, ErrDuplicate):
		// a concurrent expansion got there first and the unique index rejected ours
		return nil, ErrBatchExists
	default:
		return nil, err
	}
}

func (r *PremiumMessageRepository) ListByPurchase(ctx context.Context, purchaseID int64) ([]*model.PremiumMessage, error) {
	var rows []*model.PremiumMessage
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("order_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
