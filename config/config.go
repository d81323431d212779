package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BIRTHDAY_OPENAI_API_KEY.
const EnvPrefix = "BIRTHDAY"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Generation GenerationConfig `mapstructure:"generation"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Email      EmailConfig      `mapstructure:"email"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend. "memory" is only honoured by
// non-production builds.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MessageTTL   time.Duration `mapstructure:"message_ttl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// RateLimitConfig holds per-minute request budgets for each endpoint class.
type RateLimitConfig struct {
	MessagePerMinute  int `mapstructure:"message_per_minute"`
	ImagePerMinute    int `mapstructure:"image_per_minute"`
	ExpandPerMinute   int `mapstructure:"expand_per_minute"`
	PurchasePerMinute int `mapstructure:"purchase_per_minute"`
	APIPerMinute      int `mapstructure:"api_per_minute"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	TextModel   string        `mapstructure:"text_model"`
	ImageModel  string        `mapstructure:"image_model"`
	ImageSize   string        `mapstructure:"image_size"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Image generation modes.
const (
	ImageModeAlways    = "always"
	ImageModeOnRequest = "on_request"
	ImageModeNever     = "never"
)

type GenerationConfig struct {
	ImageMode       string `mapstructure:"image_mode"`
	FallbackOnError bool   `mapstructure:"fallback_on_error"`
	PremiumCount    int    `mapstructure:"premium_count"`
}

type BreakerConfig struct {
	MaxFailures      int           `mapstructure:"max_failures"`
	HalfOpenRequests int           `mapstructure:"half_open_requests"`
	ResetInterval    time.Duration `mapstructure:"reset_interval"`
}

// Payment providers.
const (
	PaymentStripe   = "stripe"
	PaymentSimulate = "simulate"
)

type PaymentConfig struct {
	Provider        string `mapstructure:"provider"`
	SecretKey       string `mapstructure:"secret_key"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
	Amount          int64  `mapstructure:"amount"`
	Currency        string `mapstructure:"currency"`
	AllowTestBypass bool   `mapstructure:"allow_test_bypass"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// envOnlyKeys have no default and are typically left out of the file,
// secrets above all.
var envOnlyKeys = []string{
	"postgres.user",
	"postgres.password",
	"postgres.dbname",
	"redis.enabled",
	"redis.password",
	"redis.db",
	"logging.file_path",
	"openai.api_key",
	"payment.secret_key",
	"payment.webhook_secret",
	"payment.allow_test_bypass",
	"email.enabled",
	"email.api_key",
	"email.from",
	"email.from_name",
	"sms.enabled",
	"sms.account_sid",
	"sms.auth_token",
	"sms.from",
	"kafka.enabled",
	"kafka.brokers",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.max_open_conns", 20)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.message_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("ratelimit.message_per_minute", 10)
	v.SetDefault("ratelimit.image_per_minute", 5)
	v.SetDefault("ratelimit.expand_per_minute", 10)
	v.SetDefault("ratelimit.purchase_per_minute", 20)
	v.SetDefault("ratelimit.api_per_minute", 120)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.text_model", "gpt-4o")
	v.SetDefault("openai.image_model", "dall-e-3")
	v.SetDefault("openai.image_size", "1024x1024")
	v.SetDefault("openai.temperature", 0.9)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("generation.image_mode", ImageModeOnRequest)
	v.SetDefault("generation.fallback_on_error", true)
	v.SetDefault("generation.premium_count", 5)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.half_open_requests", 1)
	v.SetDefault("breaker.reset_interval", 30*time.Second)

	v.SetDefault("payment.provider", PaymentSimulate)
	v.SetDefault("payment.amount", 299)
	v.SetDefault("payment.currency", "usd")

	v.SetDefault("kafka.topic", "birthday.events")
	v.SetDefault("kafka.group_id", "birthday-expander")
}

// LoadConfig reads the TOML file at path (optional when empty) and applies
// BIRTHDAY_* environment overrides on top of it.
func LoadConfig(path string) (*Config, error) {
	// .env is a convenience for local runs, a missing file is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches keys viper already knows about
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports collaborator misconfiguration so it surfaces at startup
// rather than on the first request that needs the collaborator.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DBName == "" {
			errs = append(errs, errors.New("postgres.dbname is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required"))
	}

	switch c.Generation.ImageMode {
	case ImageModeAlways, ImageModeOnRequest, ImageModeNever:
	default:
		errs = append(errs, fmt.Errorf("unknown generation.image_mode %q", c.Generation.ImageMode))
	}
	if c.Generation.PremiumCount <= 0 {
		errs = append(errs, errors.New("generation.premium_count must be positive"))
	}

	switch c.Payment.Provider {
	case PaymentStripe:
		if c.Payment.SecretKey == "" || c.Payment.WebhookSecret == "" {
			errs = append(errs, errors.New("payment.secret_key and payment.webhook_secret are required for stripe"))
		}
		if c.Payment.Amount <= 0 || c.Payment.Currency == "" {
			errs = append(errs, errors.New("payment.amount and payment.currency are required for stripe"))
		}
	case PaymentSimulate:
	default:
		errs = append(errs, fmt.Errorf("unknown payment.provider %q", c.Payment.Provider))
	}

	if c.Email.Enabled && (c.Email.APIKey == "" || c.Email.From == "") {
		errs = append(errs, errors.New("email.api_key and email.from are required when email is enabled"))
	}
	if c.SMS.Enabled && (c.SMS.AccountSID == "" || c.SMS.AuthToken == "" || c.SMS.From == "") {
		errs = append(errs, errors.New("sms.account_sid, sms.auth_token and sms.from are required when sms is enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
