package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
port = 9090
mode = "debug"

[storage]
driver = "memory"

[openai]
api_key = "sk-test"
text_model = "gpt-4o-mini"

[generation]
image_mode = "always"

[payment]
provider = "simulate"
allow_test_bypass = true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads file and applies defaults", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Server.Mode)
		assert.Equal(t, "memory", cfg.Storage.Driver)
		assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.TextModel)
		assert.Equal(t, "dall-e-3", cfg.OpenAI.ImageModel)
		assert.Equal(t, ImageModeAlways, cfg.Generation.ImageMode)
		assert.True(t, cfg.Generation.FallbackOnError)
		assert.Equal(t, 5, cfg.Generation.PremiumCount)
		assert.Equal(t, int64(299), cfg.Payment.Amount)
		assert.Equal(t, "usd", cfg.Payment.Currency)
		assert.True(t, cfg.Payment.AllowTestBypass)
		assert.Equal(t, 24*time.Hour, cfg.Redis.MessageTTL)
		assert.Equal(t, ":9090", cfg.Server.Addr())
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		t.Setenv("BIRTHDAY_OPENAI_TEXT_MODEL", "gpt-4.1")
		t.Setenv("BIRTHDAY_SERVER_PORT", "7000")

		cfg, err := LoadConfig(writeConfig(t, sampleConfig))
		require.NoError(t, err)
		assert.Equal(t, "gpt-4.1", cfg.OpenAI.TextModel)
		assert.Equal(t, 7000, cfg.Server.Port)
	})

	t.Run("secrets come from the environment alone", func(t *testing.T) {
		t.Setenv("BIRTHDAY_OPENAI_API_KEY", "sk-from-env")
		t.Setenv("BIRTHDAY_PAYMENT_PROVIDER", "stripe")
		t.Setenv("BIRTHDAY_PAYMENT_SECRET_KEY", "sk_live_env")
		t.Setenv("BIRTHDAY_PAYMENT_WEBHOOK_SECRET", "whsec_env")
		t.Setenv("BIRTHDAY_SMS_AUTH_TOKEN", "twilio-token")
		t.Setenv("BIRTHDAY_REDIS_PASSWORD", "redis-pass")
		t.Setenv("BIRTHDAY_KAFKA_ENABLED", "true")
		t.Setenv("BIRTHDAY_KAFKA_BROKERS", "k1:9092,k2:9092")

		body := `
[storage]
driver = "memory"
`
		cfg, err := LoadConfig(writeConfig(t, body))
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
		assert.Equal(t, PaymentStripe, cfg.Payment.Provider)
		assert.Equal(t, "sk_live_env", cfg.Payment.SecretKey)
		assert.Equal(t, "whsec_env", cfg.Payment.WebhookSecret)
		assert.Equal(t, "twilio-token", cfg.SMS.AuthToken)
		assert.Equal(t, "redis-pass", cfg.Redis.Password)
		assert.True(t, cfg.Kafka.Enabled)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("shipped example config starts with env secrets", func(t *testing.T) {
		t.Setenv("BIRTHDAY_OPENAI_API_KEY", "sk-from-env")
		cfg, err := LoadConfig(filepath.Join("..", "config.toml"))
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
		assert.Equal(t, 1, cfg.Breaker.HalfOpenRequests)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("missing openai key fails at startup", func(t *testing.T) {
		t.Setenv("BIRTHDAY_OPENAI_API_KEY", "")
		body := `
[storage]
driver = "memory"
`
		_, err := LoadConfig(writeConfig(t, body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai.api_key")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:    StorageConfig{Driver: "memory"},
			OpenAI:     OpenAIConfig{APIKey: "sk"},
			Generation: GenerationConfig{ImageMode: ImageModeNever, PremiumCount: 5},
			Payment:    PaymentConfig{Provider: PaymentSimulate},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mysql" },
			wantErr: "storage.driver",
		},
		{
			name:    "postgres without dbname",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "postgres.dbname",
		},
		{
			name: "stripe without secrets",
			mutate: func(c *Config) {
				c.Payment.Provider = PaymentStripe
				c.Payment.Amount = 299
				c.Payment.Currency = "usd"
			},
			wantErr: "webhook_secret",
		},
		{
			name:    "email enabled without key",
			mutate:  func(c *Config) { c.Email.Enabled = true },
			wantErr: "email.api_key",
		},
		{
			name:    "sms enabled without credentials",
			mutate:  func(c *Config) { c.SMS.Enabled = true },
			wantErr: "sms.account_sid",
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: "kafka.brokers",
		},
		{
			name:    "bad image mode",
			mutate:  func(c *Config) { c.Generation.ImageMode = "sometimes" },
			wantErr: "image_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
