package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/BirthdayBox/internal/model"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrBatchExists = errors.New("premium batch already exists for purchase")
	ErrReference   = errors.New("referenced record does not exist")
	ErrDuplicate   = errors.New("duplicate key")
	ErrEmptyBatch  = errors.New("premium batch is empty")
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
}

type IPurchaseRepository interface {
	Create(ctx context.Context, purchase *model.Purchase) error
	FindByID(ctx context.Context, id int64) (*model.Purchase, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*model.Purchase, error)
	// TransitionStatus moves the purchase to `to` only if its current status is
	// one of from. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id int64, from []model.PurchaseStatus, to model.PurchaseStatus) (bool, error)
	SetPaymentIntent(ctx context.Context, id int64, intentID string) error
}

type IPremiumMessageRepository interface {
	// CreateBatch inserts contents as order_index 1..n in one statement. It
	// returns ErrBatchExists when the purchase already has a batch, including
	// when a concurrent insert wins the race.
	CreateBatch(ctx context.Context, purchaseID int64, contents []string) ([]*model.PremiumMessage, error)
	// ListByPurchase returns the batch ordered by order_index ascending.
	ListByPurchase(ctx context.Context, purchaseID int64) ([]*model.PremiumMessage, error)
}

// Store groups the three tables behind one injectable value.
type Store struct {
	Messages  IMessageRepository
	Purchases IPurchaseRepository
	Premium   IPremiumMessageRepository
}

// NewStore returns the relational implementation.
func NewStore(db *gorm.DB) Store {
	return Store{
		Messages:  NewMessageRepository(db),
		Purchases: NewPurchaseRepository(db),
		Premium:   NewPremiumMessageRepository(db),
	}
}

// translate maps gorm's translated driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrReference
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
