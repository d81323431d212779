package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
)

// Handler processes one event value. Returning an error triggers a bounded
// retry; the offset is committed either way so a poison event cannot block
// the partition.
type Handler func(ctx context.Context, value []byte) error

const (
	handlerAttempts = 3
	retryBackoff    = 500 * time.Millisecond
)

type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler Handler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewConsumer(cfg config.KafkaConfig, handler Handler, logger *zap.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Net.DialTimeout = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	return &Consumer{group: group, topics: []string{cfg.Topic}, handler: handler, logger: logger}, nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		h := &groupHandler{handler: c.handler, logger: c.logger, backoff: retryBackoff}
		for {
			if err := c.group.Consume(ctx, c.topics, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("kafka consume failed", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.Warn("kafka consumer error", zap.Error(err))
		}
	}()
}

func (c *Consumer) Close() error {
	err := c.group.Close()
	c.wg.Wait()
	return err
}

type groupHandler struct {
	handler Handler
	logger  *zap.Logger
	backoff time.Duration
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = h.handler(ctx, msg.Value); err == nil {
			return
		}
		if attempt < handlerAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.backoff * time.Duration(attempt)):
			}
		}
	}
	h.logger.Error("dropping event after retries",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Error(err),
	)
}
