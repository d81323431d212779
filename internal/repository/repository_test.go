package repository_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/repository/memory"
	"github.com/Gopher0727/BirthdayBox/internal/storage"
)

// stores returns every backend available in this environment. The relational
// one needs BIRTHDAY_TEST_POSTGRES_DSN pointing at a disposable database.
func stores(t *testing.T) map[string]repository.Store {
	out := map[string]repository.Store{"memory": memory.New()}

	dsn := os.Getenv("BIRTHDAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		return out
	}
	db, err := storage.InitPostgres(dsn, 2, 10, "warn")
	if err != nil {
		t.Skipf("Skipping postgres backend: %v", err)
	}
	require.NoError(t, db.Exec("TRUNCATE premium_messages, purchases, messages RESTART IDENTITY CASCADE").Error)
	out["postgres"] = repository.NewStore(db)
	return out
}

func newMessage() *model.Message {
	return &model.Message{
		RecipientName:    "Sam",
		RelationshipRole: "friend",
		Personality:      "sarcastic, loves coffee",
		Content:          "Happy birthday, Sam!",
		DeliveryMethod:   model.DeliveryEmail,
	}
}

func TestStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("message ids are unique and content round-trips", func(t *testing.T) {
				a, b := newMessage(), newMessage()
				b.Content = "Another one"
				require.NoError(t, store.Messages.Create(ctx, a))
				require.NoError(t, store.Messages.Create(ctx, b))
				assert.NotEqual(t, a.ID, b.ID)

				got, err := store.Messages.FindByID(ctx, b.ID)
				require.NoError(t, err)
				assert.Equal(t, "Another one", got.Content)
				assert.Nil(t, got.ImageURL)
			})

			t.Run("unknown message is not found", func(t *testing.T) {
				_, err := store.Messages.FindByID(ctx, 999999)
				assert.ErrorIs(t, err, repository.ErrNotFound)
			})

			t.Run("purchase requires existing message", func(t *testing.T) {
				err := store.Purchases.Create(ctx, &model.Purchase{Email: "a@b.com", OriginalMessageID: 999999})
				assert.ErrorIs(t, err, repository.ErrReference)
			})

			t.Run("purchase starts pending and transitions conditionally", func(t *testing.T) {
				msg := newMessage()
				require.NoError(t, store.Messages.Create(ctx, msg))
				p := &model.Purchase{Email: "a@b.com", OriginalMessageID: msg.ID}
				require.NoError(t, store.Purchases.Create(ctx, p))
				assert.Equal(t, model.PurchasePending, p.Status)

				changed, err := store.Purchases.TransitionStatus(ctx, p.ID, []model.PurchaseStatus{model.PurchasePending}, model.PurchaseCompleted)
				require.NoError(t, err)
				assert.True(t, changed)

				changed, err = store.Purchases.TransitionStatus(ctx, p.ID, []model.PurchaseStatus{model.PurchasePending}, model.PurchaseFailed)
				require.NoError(t, err)
				assert.False(t, changed)

				got, err := store.Purchases.FindByID(ctx, p.ID)
				require.NoError(t, err)
				assert.Equal(t, model.PurchaseCompleted, got.Status)

				_, err = store.Purchases.TransitionStatus(ctx, 999999, []model.PurchaseStatus{model.PurchasePending}, model.PurchaseFailed)
				assert.ErrorIs(t, err, repository.ErrNotFound)
			})

			t.Run("payment intent lookup", func(t *testing.T) {
				msg := newMessage()
				require.NoError(t, store.Messages.Create(ctx, msg))
				p := &model.Purchase{Email: "a@b.com", OriginalMessageID: msg.ID}
				require.NoError(t, store.Purchases.Create(ctx, p))

				intent := fmt.Sprintf("pi_%s_%d", name, p.ID)
				require.NoError(t, store.Purchases.SetPaymentIntent(ctx, p.ID, intent))

				got, err := store.Purchases.FindByPaymentIntent(ctx, intent)
				require.NoError(t, err)
				assert.Equal(t, p.ID, got.ID)

				_, err = store.Purchases.FindByPaymentIntent(ctx, "pi_missing")
				assert.ErrorIs(t, err, repository.ErrNotFound)
				assert.ErrorIs(t, store.Purchases.SetPaymentIntent(ctx, 999999, "pi_x"), repository.ErrNotFound)
			})

			t.Run("premium batch is ordered and single", func(t *testing.T) {
				msg := newMessage()
				require.NoError(t, store.Messages.Create(ctx, msg))
				p := &model.Purchase{Email: "a@b.com", OriginalMessageID: msg.ID}
				require.NoError(t, store.Purchases.Create(ctx, p))

				empty, err := store.Premium.ListByPurchase(ctx, p.ID)
				require.NoError(t, err)
				assert.Empty(t, empty)

				rows, err := store.Premium.CreateBatch(ctx, p.ID, []string{"one", "two", "three", "four", "five"})
				require.NoError(t, err)
				require.Len(t, rows, 5)

				_, err = store.Premium.CreateBatch(ctx, p.ID, []string{"again"})
				assert.ErrorIs(t, err, repository.ErrBatchExists)

				listed, err := store.Premium.ListByPurchase(ctx, p.ID)
				require.NoError(t, err)
				require.Len(t, listed, 5)
				for i, row := range listed {
					assert.Equal(t, i+1, row.OrderIndex)
					assert.Equal(t, rows[i].Content, row.Content)
				}
			})

			t.Run("premium batch requires existing purchase", func(t *testing.T) {
				_, err := store.Premium.CreateBatch(ctx, 999999, []string{"x"})
				assert.ErrorIs(t, err, repository.ErrReference)
			})

			t.Run("empty batch is rejected", func(t *testing.T) {
				_, err := store.Premium.CreateBatch(ctx, 1, nil)
				assert.ErrorIs(t, err, repository.ErrEmptyBatch)
			})

			t.Run("concurrent batches collapse to one", func(t *testing.T) {
				msg := newMessage()
				require.NoError(t, store.Messages.Create(ctx, msg))
				p := &model.Purchase{Email: "a@b.com", OriginalMessageID: msg.ID}
				require.NoError(t, store.Purchases.Create(ctx, p))

				const writers = 8
				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					created int
				)
				for i := range writers {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := store.Premium.CreateBatch(ctx, p.ID, []string{
							fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i), fmt.Sprintf("c%d", i),
						})
						if err == nil {
							mu.Lock()
							created++
							mu.Unlock()
							return
						}
						assert.ErrorIs(t, err, repository.ErrBatchExists)
					}(i)
				}
				wg.Wait()

				assert.Equal(t, 1, created)
				listed, err := store.Premium.ListByPurchase(ctx, p.ID)
				require.NoError(t, err)
				assert.Len(t, listed, 3)
			})
		})
	}
}
