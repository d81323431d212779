// Package ai adapts OpenAI chat completions and image generation to the
// text and image collaborators used by the services.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/resilience"
	"github.com/Gopher0727/BirthdayBox/internal/prompt"
)

var (
	ErrMissingAPIKey = errors.New("openai api key is not configured")
	ErrEmptyResponse = errors.New("generation returned no content")
)

type Client struct {
	client      *gopenai.Client
	textModel   string
	imageModel  string
	imageSize   string
	temperature float32
	text        *resilience.Breaker
	image       *resilience.Breaker
	logger      *zap.Logger
}

// NewClient fails when no API key is configured so a misconfigured
// deployment stops at startup. Text and image calls get their own breaker
// built from breakerCfg, and requests OpenAI rejects never trip either.
func NewClient(cfg config.OpenAIConfig, breakerCfg resilience.BreakerConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if breakerCfg.Timeout <= 0 {
		breakerCfg.Timeout = cfg.Timeout
	}
	breakerCfg.IsCallerError = IsRequestRejected
	textCfg, imageCfg := breakerCfg, breakerCfg
	textCfg.Name, imageCfg.Name = "openai-text", "openai-image"

	aiConfig := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		aiConfig.BaseURL = cfg.BaseURL
	}

	c := &Client{
		client:      gopenai.NewClientWithConfig(aiConfig),
		textModel:   cfg.TextModel,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		temperature: cfg.Temperature,
		text:        resilience.NewBreaker(textCfg, logger),
		image:       resilience.NewBreaker(imageCfg, logger),
		logger:      logger,
	}
	if c.textModel == "" {
		c.textModel = gopenai.GPT4o
	}
	if c.imageModel == "" {
		c.imageModel = gopenai.CreateImageModelDallE3
	}
	if c.imageSize == "" {
		c.imageSize = gopenai.CreateImageSize1024x1024
	}
	return c, nil
}

// GenerateText sends one chat completion and returns the trimmed first choice.
func (c *Client) GenerateText(ctx context.Context, in prompt.Instructions) (string, error) {
	start := time.Now()

	var resp gopenai.ChatCompletionResponse
	err := c.text.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
			Model: c.textModel,
			Messages: []gopenai.ChatCompletionMessage{
				{Role: gopenai.ChatMessageRoleSystem, Content: in.System},
				{Role: gopenai.ChatMessageRoleUser, Content: in.User},
			},
			MaxTokens:   in.MaxTokens,
			Temperature: c.temperature,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("text generated",
		zap.String("model", c.textModel),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return content, nil
}

// GenerateImage requests one image and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, imagePrompt string) (string, error) {
	start := time.Now()

	var resp gopenai.ImageResponse
	err := c.image.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateImage(ctx, gopenai.ImageRequest{
			Prompt:         imagePrompt,
			Model:          c.imageModel,
			N:              1,
			Size:           c.imageSize,
			Quality:        gopenai.CreateImageQualityStandard,
			ResponseFormat: gopenai.CreateImageResponseFormatURL,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("image generated",
		zap.String("model", c.imageModel),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.Data[0].URL, nil
}

// IsRequestRejected reports whether OpenAI refused the request itself, such
// as a content policy violation. Rate limiting is not a rejection.
func IsRequestRejected(err error) bool {
	status := 0
	var apiErr *gopenai.APIError
	var reqErr *gopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// Check fails while the text breaker is open. Message creation and premium
// expansion both depend on it; card images are optional.
func (c *Client) Check(context.Context) error {
	if state := c.text.State(); state == "open" {
		return fmt.Errorf("%s breaker is %s", c.text.Name(), state)
	}
	return nil
}
