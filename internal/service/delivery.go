package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/internal/metrics"
	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/notify"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/utils"
)

var (
	messageTmpl = template.Must(template.New("message").Parse(`<div style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
<h2>Happy Birthday, {{.Name}}!</h2>
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="Birthday card" style="width: 100%; border-radius: 8px;">{{end}}
<p style="white-space: pre-line;">{{.Content}}</p>
{{with .From}}<p>From {{.}}</p>{{end}}
</div>`))

	bundleTmpl = template.Must(template.New("bundle").Parse(`<div style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
<h2>Your birthday messages for {{.Name}}</h2>
{{with .Original}}<h3>Original</h3><p style="white-space: pre-line;">{{.}}</p>{{end}}
<h3>Premium variations</h3>
<ol>{{range .Premium}}<li style="margin-bottom: 12px; white-space: pre-line;">{{.Content}}</li>{{end}}</ol>
</div>`))
)

type IDeliveryService interface {
	SendMessage(ctx context.Context, messageID int64, req *SendMessageRequest) (*DeliveryResult, error)
	BundleSender
}

type SendMessageRequest struct {
	Channel        model.DeliveryMethod `json:"channel"`
	RecipientEmail string               `json:"recipientEmail" binding:"max=255"`
	RecipientPhone string               `json:"recipientPhone" binding:"max=32"`
}

type DeliveryResult struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

type DeliveryService struct {
	messages repository.IMessageRepository
	email    EmailSender
	sms      SMSSender
	logger   *zap.Logger
}

// NewDeliveryService accepts nil senders for channels that are not
// configured; sends on those channels fail with ErrChannelUnavailable.
func NewDeliveryService(messages repository.IMessageRepository, email EmailSender, sms SMSSender, logger *zap.Logger) IDeliveryService {
	return &DeliveryService{
		messages: messages,
		email:    email,
		sms:      sms,
		logger:   logger.Named("delivery"),
	}
}

// SendMessage delivers a stored message. The channel and addresses in the
// request override what was stored with the message.
func (s *DeliveryService) SendMessage(ctx context.Context, messageID int64, req *SendMessageRequest) (*DeliveryResult, error) {
	if messageID <= 0 {
		return nil, invalid("message id must be a positive integer")
	}
	if req == nil {
		req = &SendMessageRequest{}
	}

	message, err := s.messages.FindByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("message", messageID)
	}
	if err != nil {
		return nil, persistence("find message", err)
	}

	channel := req.Channel
	if channel == "" {
		channel = message.DeliveryMethod
	}
	if channel == "" {
		channel = model.DeliveryEmail
	}
	if !channel.Valid() {
		return nil, invalid("channel must be one of email, sms, both")
	}
	useEmail := channel == model.DeliveryEmail || channel == model.DeliveryBoth
	useSMS := channel == model.DeliverySMS || channel == model.DeliveryBoth

	to := firstNonEmpty(strings.TrimSpace(req.RecipientEmail), message.RecipientEmail)
	phone := utils.NormalizePhone(firstNonEmpty(strings.TrimSpace(req.RecipientPhone), message.RecipientPhone))
	if useEmail && !utils.ValidateEmail(to) {
		return nil, invalid("a valid recipient email is required")
	}
	if useSMS && !utils.ValidatePhone(phone) {
		return nil, invalid("a valid recipient phone in international format is required")
	}
	if (useEmail && s.email == nil) || (useSMS && s.sms == nil) {
		return nil, ErrChannelUnavailable
	}

	result := &DeliveryResult{}
	var errs []error
	if useEmail {
		if err := s.sendEmail(ctx, to, message); err != nil {
			errs = append(errs, err)
		} else {
			result.Email = true
		}
	}
	if useSMS {
		if err := s.sendSMS(ctx, phone, message); err != nil {
			errs = append(errs, err)
		} else {
			result.SMS = true
		}
	}
	if len(errs) > 0 {
		return result, errors.Join(append([]error{ErrDelivery}, errs...)...)
	}

	s.logger.Info("message delivered",
		zap.Int64("message_id", messageID),
		zap.String("channel", string(channel)),
	)
	return result, nil
}

func (s *DeliveryService) sendEmail(ctx context.Context, to string, message *model.Message) error {
	var html bytes.Buffer
	err := messageTmpl.Execute(&html, map[string]any{
		"Name":     message.RecipientName,
		"ImageURL": deref(message.ImageURL),
		"Content":  message.Content,
		"From":     message.SenderEmail,
	})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	err = s.email.SendEmail(ctx, notify.Email{
		To:      to,
		Subject: fmt.Sprintf("A birthday message for %s", message.RecipientName),
		HTML:    html.String(),
		Text:    message.Content,
	})
	observeDelivery("email", err)
	if err != nil {
		s.logger.Warn("email delivery failed", zap.Int64("message_id", message.ID), zap.Error(err))
	}
	return err
}

func (s *DeliveryService) sendSMS(ctx context.Context, to string, message *model.Message) error {
	body := message.Content
	if message.ImageURL != nil {
		body += "\n\n" + *message.ImageURL
	}
	err := s.sms.SendSMS(ctx, notify.SMS{To: to, Body: body})
	observeDelivery("sms", err)
	if err != nil {
		s.logger.Warn("sms delivery failed", zap.Int64("message_id", message.ID), zap.Error(err))
	}
	return err
}

// SendBundle emails the original message and its premium variants to the
// buyer.
func (s *DeliveryService) SendBundle(ctx context.Context, purchase *model.Purchase, original *model.Message, premium []*model.PremiumMessage) error {
	if s.email == nil {
		return ErrChannelUnavailable
	}
	name, content := "", ""
	if original != nil {
		name, content = original.RecipientName, original.Content
	}

	var html, text bytes.Buffer
	err := bundleTmpl.Execute(&html, map[string]any{
		"Name":     name,
		"Original": content,
		"Premium":  premium,
	})
	if err != nil {
		return fmt.Errorf("render bundle: %w", err)
	}
	for _, p := range premium {
		fmt.Fprintf(&text, "%d. %s\n\n", p.OrderIndex, p.Content)
	}

	err = s.email.SendEmail(ctx, notify.Email{
		To:      purchase.Email,
		Subject: fmt.Sprintf("Your premium birthday messages for %s", name),
		HTML:    html.String(),
		Text:    text.String(),
	})
	observeDelivery("bundle", err)
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}
	s.logger.Info("bundle delivered", zap.Int64("purchase_id", purchase.ID), zap.Int("count", len(premium)))
	return nil
}

func observeDelivery(channel string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.DeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
