package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

type SMS struct {
	To   string
	Body string
}

// messageCreator is the slice of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSSender struct {
	api    messageCreator
	from   string
	logger *zap.Logger
}

func NewSMSSender(cfg config.SMSConfig, logger *zap.Logger) *SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSSender{api: client.Api, from: cfg.From, logger: logger}
}

// SendSMS sends one text message. The Twilio client takes no context, so
// cancellation is only honoured before the request starts.
func (s *SMSSender) SendSMS(ctx context.Context, m SMS) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(m.To)
	params.SetFrom(s.from)
	params.SetBody(m.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("%w: twilio: %v", ErrRejected, err)
	}
	if resp != nil && resp.Sid != nil {
		s.logger.Debug("sms queued", zap.String("sid", *resp.Sid))
	}
	return nil
}
