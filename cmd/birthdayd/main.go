package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/api"
	"github.com/Gopher0727/BirthdayBox/internal/handler"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/ai"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/mq"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/notify"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/payment"
	"github.com/Gopher0727/BirthdayBox/internal/pkg/resilience"
	"github.com/Gopher0727/BirthdayBox/internal/service"
	"github.com/Gopher0727/BirthdayBox/internal/storage"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer lg.Close()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("birthdayd stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化 Redis
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		var err error
		rdb, err = storage.InitRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis 初始化失败: %w", err)
		}
		defer rdb.Close()
	}

	// 初始化存储层
	backend, err := openStore(cfg, rdb, lg.Logger)
	if err != nil {
		return err
	}
	defer backend.close()

	// 初始化外部协作方
	generator, err := ai.NewClient(cfg.OpenAI, resilience.BreakerConfig{
		MaxFailures:   cfg.Breaker.MaxFailures,
		HalfOpenLimit: cfg.Breaker.HalfOpenRequests,
		ResetInterval: cfg.Breaker.ResetInterval,
	}, lg.Logger)
	if err != nil {
		return fmt.Errorf("openai 初始化失败: %w", err)
	}

	var gateway service.PaymentGateway
	if cfg.Payment.Provider == config.PaymentStripe {
		gateway = payment.NewStripeGateway(cfg.Payment, lg.Logger)
	}

	var emailSender service.EmailSender
	if cfg.Email.Enabled {
		emailSender = notify.NewEmailSender(cfg.Email, lg.Logger)
	}
	var smsSender service.SMSSender
	if cfg.SMS.Enabled {
		smsSender = notify.NewSMSSender(cfg.SMS, lg.Logger)
	}

	// 初始化 Kafka Producer，未启用时事件直接丢弃
	var events service.EventPublisher = service.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(cfg.Kafka, lg.Logger)
		if err != nil {
			return fmt.Errorf("kafka 生产者初始化失败: %w", err)
		}
		defer producer.Close()
		events = producer
	}

	// 初始化服务层
	messageService := service.NewMessageService(backend.store.Messages, generator, generator, events, cfg.Generation, lg.Logger)
	deliveryService := service.NewDeliveryService(backend.store.Messages, emailSender, smsSender, lg.Logger)
	purchaseService := service.NewPurchaseService(backend.store, gateway, events, cfg.Payment, lg.Logger)
	premiumService := service.NewPremiumService(backend.store, generator, deliveryService, events, cfg.Generation.PremiumCount, lg.Logger)

	// 购买完成后在后台生成高级消息
	if cfg.Kafka.Enabled {
		consumer, err := mq.NewConsumer(cfg.Kafka, service.NewCompletionHandler(backend.store.Purchases, premiumService, lg.Logger), lg.Logger)
		if err != nil {
			return fmt.Errorf("kafka 消费者初始化失败: %w", err)
		}
		consumer.Start(ctx)
		defer consumer.Close()
	}

	checks := backend.checks
	checks["openai"] = generator.Check
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	mw := api.NewMiddlewareManager(rdb, cfg.RateLimit, lg)
	router := api.NewRouter(cfg.Server.Mode, mw, api.Handlers{
		Message:  handler.NewMessageHandler(messageService, deliveryService, lg),
		Purchase: handler.NewPurchaseHandler(purchaseService, lg),
		Premium:  handler.NewPremiumHandler(premiumService, lg),
		Webhook:  handler.NewWebhookHandler(purchaseService, lg),
	}, checks)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("payment", cfg.Payment.Provider),
			zap.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
