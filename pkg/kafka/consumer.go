package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/github-verifier/cfg"
	"github.com/thep200/github-verifier/pkg/log"
)

// Consumer đọc event từ một topic và đưa từng message cho handler.
// Key của message là handle nên handler nhận cả key lẫn value.
type Consumer struct {
	Config *cfg.Config
	Logger log.Logger
	reader *kafka.Reader
}

func NewConsumer(config *cfg.Config, logger log.Logger, topic string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Kafka.Brokers,
		Topic:          topic,
		GroupID:        config.Kafka.Consumer.GroupId,
		MinBytes:       10e3,        // 10KB
		MaxBytes:       10e6,        // 10MB
		MaxWait:        time.Second, // Maximum amount of time to wait for new data
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		Config: config,
		Logger: logger,
		reader: reader,
	}
}

// Start đọc message cho đến khi context bị hủy
func (c *Consumer) Start(ctx context.Context, handler func(key, value []byte) error) error {
	c.Logger.Info(ctx, "Starting Kafka consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			return c.reader.Close()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return nil
				}
				c.Logger.Error(ctx, "Error reading message: %v", err)
				continue
			}

			if err := handler(message.Key, message.Value); err != nil {
				c.Logger.Error(ctx, "Error handling message with key %s: %v", string(message.Key), err)
			}
		}
	}
}

// Close đóng Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
