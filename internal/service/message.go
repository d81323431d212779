package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/metrics"
	"github.com/Gopher0727/BirthdayBox/internal/model"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/utils"
)

const maxCardPromptLen = 4000

type IMessageService interface {
	CreateMessage(ctx context.Context, req *CreateMessageRequest) (*model.Message, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	GenerateCardImage(ctx context.Context, description string) (string, error)
}

type CreateMessageRequest struct {
	RecipientName    string               `json:"recipientName" binding:"max=100"`
	RelationshipRole string               `json:"relationshipRole" binding:"max=100"`
	Personality      string               `json:"personality" binding:"max=2000"`
	Quirks           string               `json:"quirks" binding:"max=2000"`
	RecipientGender  string               `json:"recipientGender" binding:"max=32"`
	RecipientEmail   string               `json:"recipientEmail" binding:"max=255"`
	RecipientPhone   string               `json:"recipientPhone" binding:"max=32"`
	SenderEmail      string               `json:"senderEmail" binding:"max=255"`
	SenderPhone      string               `json:"senderPhone" binding:"max=32"`
	DeliveryMethod   model.DeliveryMethod `json:"deliveryMethod"`
	GenerateImage    bool                 `json:"generateImage"`
}

// Validate trims every field and checks the required ones. Handlers call it
// at the boundary and CreateMessage repeats it for other callers; it is
// idempotent. Nothing is generated or written for a request that fails here.
func (r *CreateMessageRequest) Validate() error {
	for _, f := range []*string{
		&r.RecipientName, &r.RelationshipRole, &r.Personality, &r.Quirks, &r.RecipientGender,
		&r.RecipientEmail, &r.RecipientPhone, &r.SenderEmail, &r.SenderPhone,
	} {
		*f = strings.TrimSpace(*f)
	}

	switch {
	case r.RecipientName == "":
		return invalid("recipientName is required")
	case r.RelationshipRole == "":
		return invalid("relationshipRole is required")
	case r.Personality == "":
		return invalid("personality is required")
	}
	if r.RecipientEmail != "" && !utils.ValidateEmail(r.RecipientEmail) {
		return invalid("recipientEmail is not a valid email address")
	}
	if r.SenderEmail != "" && !utils.ValidateEmail(r.SenderEmail) {
		return invalid("senderEmail is not a valid email address")
	}
	if r.RecipientPhone != "" {
		r.RecipientPhone = utils.NormalizePhone(r.RecipientPhone)
		if !utils.ValidatePhone(r.RecipientPhone) {
			return invalid("recipientPhone must be in international format")
		}
	}
	if r.SenderPhone != "" {
		r.SenderPhone = utils.NormalizePhone(r.SenderPhone)
		if !utils.ValidatePhone(r.SenderPhone) {
			return invalid("senderPhone must be in international format")
		}
	}
	if r.DeliveryMethod == "" {
		r.DeliveryMethod = model.DeliveryEmail
	}
	if !r.DeliveryMethod.Valid() {
		return invalid("deliveryMethod must be one of email, sms, both")
	}
	return nil
}

func (r *CreateMessageRequest) recipient() prompt.Recipient {
	return prompt.Recipient{
		Name:             r.RecipientName,
		RelationshipRole: r.RelationshipRole,
		Personality:      r.Personality,
		Quirks:           r.Quirks,
		Gender:           r.RecipientGender,
	}
}

type MessageService struct {
	messages repository.IMessageRepository
	text     TextGenerator
	images   ImageGenerator
	events   EventPublisher
	cfg      config.GenerationConfig
	logger   *zap.Logger
}

func NewMessageService(messages repository.IMessageRepository, text TextGenerator, images ImageGenerator, events EventPublisher, cfg config.GenerationConfig, logger *zap.Logger) IMessageService {
	if events == nil {
		events = NopPublisher{}
	}
	return &MessageService{
		messages: messages,
		text:     text,
		images:   images,
		events:   events,
		cfg:      cfg,
		logger:   logger.Named("message"),
	}
}

func (s *MessageService) wantImage(requested bool) bool {
	if s.images == nil {
		return false
	}
	switch s.cfg.ImageMode {
	case config.ImageModeAlways:
		return true
	case config.ImageModeOnRequest:
		return requested
	default:
		return false
	}
}

// CreateMessage generates the text (and optionally a card image) for one
// recipient and stores the result. The two collaborator calls run
// concurrently; an image failure only drops the image.
func (s *MessageService) CreateMessage(ctx context.Context, req *CreateMessageRequest) (*model.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	recipient := req.recipient()

	var (
		wg       sync.WaitGroup
		content  string
		textErr  error
		imageURL *string
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		content, textErr = s.generateText(ctx, prompt.MessageInstructions(recipient))
	}()

	if s.wantImage(req.GenerateImage) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, err := s.generateImage(ctx, prompt.ImagePrompt(recipient))
			if err != nil {
				s.logger.Warn("card image generation failed, continuing without image",
					zap.String("recipient", recipient.Name), zap.Error(err))
				return
			}
			imageURL = &url
		}()
	}
	wg.Wait()

	if textErr != nil {
		if !s.cfg.FallbackOnError {
			return nil, textErr
		}
		s.logger.Warn("text generation failed, using fallback message", zap.Error(textErr))
		metrics.GenerationsTotal.WithLabelValues("text", "fallback").Inc()
		content = prompt.FallbackMessage(recipient.Name)
	}

	message := &model.Message{
		RecipientName:    req.RecipientName,
		RecipientEmail:   req.RecipientEmail,
		RecipientPhone:   req.RecipientPhone,
		RecipientGender:  req.RecipientGender,
		RelationshipRole: req.RelationshipRole,
		Personality:      req.Personality,
		Quirks:           req.Quirks,
		Content:          content,
		ImageURL:         imageURL,
		SenderEmail:      req.SenderEmail,
		SenderPhone:      req.SenderPhone,
		DeliveryMethod:   req.DeliveryMethod,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, persistence("create message", err)
	}

	s.logger.Info("message created",
		zap.Int64("message_id", message.ID),
		zap.Bool("has_image", message.ImageURL != nil),
	)
	emit(ctx, s.events, s.logger, Event{Type: EventMessageCreated, MessageID: message.ID})
	return message, nil
}

func (s *MessageService) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	if id <= 0 {
		return nil, invalid("message id must be a positive integer")
	}
	message, err := s.messages.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("message", id)
	}
	if err != nil {
		return nil, persistence("find message", err)
	}
	return message, nil
}

// GenerateCardImage renders a card from a free-form description, independent
// of any stored message.
func (s *MessageService) GenerateCardImage(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", invalid("prompt is required")
	}
	if len(description) > maxCardPromptLen {
		return "", invalid("prompt is too long")
	}
	if s.images == nil {
		return "", ErrGeneration
	}
	return s.generateImage(ctx, description)
}

func (s *MessageService) generateText(ctx context.Context, in prompt.Instructions) (string, error) {
	start := time.Now()
	text, err := s.text.GenerateText(ctx, in)
	metrics.GenerationDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("text", "error").Inc()
		return "", errors.Join(ErrGeneration, err)
	}
	metrics.GenerationsTotal.WithLabelValues("text", "ok").Inc()
	return strings.TrimSpace(text), nil
}

func (s *MessageService) generateImage(ctx context.Context, description string) (string, error) {
	start := time.Now()
	url, err := s.images.GenerateImage(ctx, description)
	metrics.GenerationDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err == nil && url == "" {
		err = errors.New("empty image url")
	}
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("image", "error").Inc()
		return "", errors.Join(ErrGeneration, err)
	}
	metrics.GenerationsTotal.WithLabelValues("image", "ok").Inc()
	return url, nil
}
