//go:build !production

// Package memory is a single-process, map-backed store for tests and local
// demos. It is excluded from production builds.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
)

type db struct {
	mu sync.Mutex

	messages  map[int64]model.Message
	purchases map[int64]model.Purchase
	premium   map[int64][]model.PremiumMessage

	nextMessageID  int64
	nextPurchaseID int64
	nextPremiumID  int64
}

// New returns a fresh, empty store. Every call has its own state.
func New() repository.Store {
	d := &db{
		messages:  make(map[int64]model.Message),
		purchases: make(map[int64]model.Purchase),
		premium:   make(map[int64][]model.PremiumMessage),
	}
	return repository.Store{
		Messages:  (*messageRepo)(d),
		Purchases: (*purchaseRepo)(d),
		Premium:   (*premiumRepo)(d),
	}
}

type messageRepo db

func (r *messageRepo) Create(_ context.Context, message *model.Message) error {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextMessageID++
	message.ID = d.nextMessageID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.DeliveryMethod == "" {
		message.DeliveryMethod = model.DeliveryEmail
	}
	d.messages[message.ID] = *message
	return nil
}

func (r *messageRepo) FindByID(_ context.Context, id int64) (*model.Message, error) {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

type purchaseRepo db

func (r *purchaseRepo) Create(_ context.Context, purchase *model.Purchase) error {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.messages[purchase.OriginalMessageID]; !ok {
		return repository.ErrReference
	}
	if purchase.Status == "" {
		purchase.Status = model.PurchasePending
	}
	d.nextPurchaseID++
	purchase.ID = d.nextPurchaseID
	now := time.Now()
	purchase.CreatedAt, purchase.UpdatedAt = now, now
	d.purchases[purchase.ID] = *purchase
	return nil
}

func (r *purchaseRepo) FindByID(_ context.Context, id int64) (*model.Purchase, error) {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.purchases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *purchaseRepo) FindByPaymentIntent(_ context.Context, intentID string) (*model.Purchase, error) {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.purchases {
		if p.PaymentIntentID != nil && *p.PaymentIntentID == intentID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *purchaseRepo) TransitionStatus(_ context.Context, id int64, from []model.PurchaseStatus, to model.PurchaseStatus) (bool, error) {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.purchases[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	d.purchases[id] = p
	return true, nil
}

func (r *purchaseRepo) SetPaymentIntent(_ context.Context, id int64, intentID string) error {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.purchases[id]
	if !ok {
		return repository.ErrNotFound
	}
	for otherID, other := range d.purchases {
		if otherID != id && other.PaymentIntentID != nil && *other.PaymentIntentID == intentID {
			return repository.ErrDuplicate
		}
	}
	p.PaymentIntentID = &intentID
	p.UpdatedAt = time.Now()
	d.purchases[id] = p
	return nil
}

type premiumRepo db

// CreateBatch checks and inserts under one lock, which gives the same
// single-batch guarantee as the unique index in the relational store.
func (r *premiumRepo) CreateBatch(_ context.Context, purchaseID int64, contents []string) ([]*model.PremiumMessage, error) {
	if len(contents) == 0 {
		return nil, repository.ErrEmptyBatch
	}

	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.purchases[purchaseID]; !ok {
		return nil, repository.ErrReference
	}
	if len(d.premium[purchaseID]) > 0 {
		return nil, repository.ErrBatchExists
	}

	now := time.Now()
	batch := make([]model.PremiumMessage, len(contents))
	out := make([]*model.PremiumMessage, len(contents))
	for i, c := range contents {
		d.nextPremiumID++
		batch[i] = model.PremiumMessage{
			ID:         d.nextPremiumID,
			PurchaseID: purchaseID,
			OrderIndex: i + 1,
			Content:    c,
			CreatedAt:  now,
		}
		row := batch[i]
		out[i] = &row
	}
	d.premium[purchaseID] = batch
	return out, nil
}

func (r *premiumRepo) ListByPurchase(_ context.Context, purchaseID int64) ([]*model.PremiumMessage, error) {
	d := (*db)(r)
	d.mu.Lock()
	defer d.mu.Unlock()

	batch := d.premium[purchaseID]
	out := make([]*model.PremiumMessage, len(batch))
	for i := range batch {
		row := batch[i]
		out[i] = &row
	}
	slices.SortFunc(out, func(a, b *model.PremiumMessage) int { return a.OrderIndex - b.OrderIndex })
	return out, nil
}
