package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/notify"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/payment"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/repository/memory"
)

var errUpstream = errors.New("upstream unavailable")

type fakeText struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	reply func(in prompt.Instructions) (string, error)
}

func (f *fakeText) GenerateText(_ context.Context, in prompt.Instructions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.reply == nil {
		return "Happy birthday! Have a great one.", nil
	}
	return f.reply(in)
}

func (f *fakeText) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// premiumReply answers every request with a clean numbered list of
// distinct variants.
func premiumReply(in prompt.Instructions) (string, error) {
	var b strings.Builder
	b.WriteString("Here are your messages:\n")
	for i, tone := range prompt.Tones {
		fmt.Fprintf(&b, "%d. A %s birthday wish, number %d.\n", i+1, tone, i+1)
	}
	return b.String(), nil
}

type fakeImage struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (f *fakeImage) GenerateImage(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := payload.(Event); ok {
		f.events = append(f.events, ev)
	}
	return f.err
}

func (f *fakePublisher) count(typ string, status model.PurchaseStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == typ && (status == "" || ev.Status == status) {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	intent   *payment.Intent
	err      error
	event    *payment.Event
	parseErr error
}

func (f *fakeGateway) CreateIntent(_ context.Context, purchaseID int64, _ string) (*payment.Intent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.intent != nil {
		return f.intent, nil
	}
	return &payment.Intent{ID: fmt.Sprintf("pi_%d", purchaseID), ClientSecret: "secret", Amount: 299, Currency: "usd"}, nil
}

func (f *fakeGateway) ParseWebhook([]byte, string) (*payment.Event, error) {
	return f.event, f.parseErr
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, e notify.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []notify.SMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, m notify.SMS) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func generationConfig(mode string) config.GenerationConfig {
	return config.GenerationConfig{ImageMode: mode, FallbackOnError: true, PremiumCount: 5}
}

func sampleRequest() *CreateMessageRequest {
	return &CreateMessageRequest{
		RecipientName:    "Sam",
		RelationshipRole: "friend",
		Personality:      "sarcastic, loves coffee",
	}
}

// seedPurchase stores a message and a purchase in the given status.
func seedPurchase(t *testing.T, store repository.Store, status model.PurchaseStatus) (*model.Message, *model.Purchase) {
	t.Helper()
	ctx := context.Background()

	msg := &model.Message{
		RecipientName:    "Sam",
		RelationshipRole: "friend",
		Personality:      "sarcastic, loves coffee",
		Content:          "Happy birthday, Sam!",
	}
	require.NoError(t, store.Messages.Create(ctx, msg))

	p := &model.Purchase{Email: "buyer@example.com", OriginalMessageID: msg.ID}
	require.NoError(t, store.Purchases.Create(ctx, p))
	if status != model.PurchasePending {
		_, err := store.Purchases.TransitionStatus(ctx, p.ID, []model.PurchaseStatus{model.PurchasePending}, status)
		require.NoError(t, err)
		p.Status = status
	}
	return msg, p
}

func newStore() repository.Store {
	return memory.New()
}

var nop = zap.NewNop()
