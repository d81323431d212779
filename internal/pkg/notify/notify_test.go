package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

func TestEmailSender_SendEmail(t *testing.T) {
	cfg := config.EmailConfig{APIKey: "SG.test", From: "cards@birthday.example", FromName: "Birthday Box"}

	t.Run("posts a single email", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v3/mail/send", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		s := NewEmailSenderWithHost(cfg, srv.URL, zap.NewNop())
		err := s.SendEmail(context.Background(), Email{To: "sam@example.com", Subject: "Happy birthday", HTML: "<p>hi</p>", Text: "hi"})
		require.NoError(t, err)

		from := body["from"].(map[string]any)
		assert.Equal(t, "cards@birthday.example", from["email"])
		assert.Equal(t, "Happy birthday", body["subject"])
		personalizations := body["personalizations"].([]any)
		to := personalizations[0].(map[string]any)["to"].([]any)
		assert.Equal(t, "sam@example.com", to[0].(map[string]any)["email"])
	})

	t.Run("non-2xx is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
		}))
		defer srv.Close()

		s := NewEmailSenderWithHost(cfg, srv.URL, zap.NewNop())
		err := s.SendEmail(context.Background(), Email{To: "sam@example.com", Subject: "x", HTML: "x"})
		assert.ErrorIs(t, err, ErrRejected)
	})
}

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestSMSSender_SendSMS(t *testing.T) {
	t.Run("sets to, from and body", func(t *testing.T) {
		fake := &fakeTwilio{}
		s := &SMSSender{api: fake, from: "+15550000000", logger: zap.NewNop()}

		require.NoError(t, s.SendSMS(context.Background(), SMS{To: "+15551234567", Body: "Happy birthday!"}))
		assert.Equal(t, "+15551234567", *fake.params.To)
		assert.Equal(t, "+15550000000", *fake.params.From)
		assert.Equal(t, "Happy birthday!", *fake.params.Body)
	})

	t.Run("provider error is rejected", func(t *testing.T) {
		s := &SMSSender{api: &fakeTwilio{err: errors.New("21211 invalid number")}, from: "+1", logger: zap.NewNop()}
		err := s.SendSMS(context.Background(), SMS{To: "+1", Body: "x"})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("cancelled context is not sent", func(t *testing.T) {
		fake := &fakeTwilio{}
		s := &SMSSender{api: fake, from: "+1", logger: zap.NewNop()}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.SendSMS(ctx, SMS{To: "+1", Body: "x"}), context.Canceled)
		assert.Nil(t, fake.params)
	})

	t.Run("constructs a real client", func(t *testing.T) {
		s := NewSMSSender(config.SMSConfig{AccountSID: "AC1", AuthToken: "tok", From: "+1"}, zap.NewNop())
		assert.NotNil(t, s.api)
	})
}
