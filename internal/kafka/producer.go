package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
	"sla-monitor/internal/utils"
)

type Config struct {
	Broker string
	Topic  string
	// Written into every event so consumers can tell instances apart.
	Source string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher emits alert events to a Kafka topic, keyed by alert id so all
// events for one alert land on the same partition.
type Publisher struct {
	writer messageWriter
	source string
	logger *logging.Logger
}

func NewPublisher(cfg Config, logger *logging.Logger) (*Publisher, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka broker and topic are required")
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Broker),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg.Source, logger), nil
}

func newPublisher(w messageWriter, source string, logger *logging.Logger) *Publisher {
	return &Publisher{writer: w, source: source, logger: logger.Component("kafka")}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Deliver(ctx context.Context, task models.Task) error {
	value, err := json.Marshal(models.NewAlertEvent(task, p.source))
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(task.Alert.ID),
		Value: value,
		Time:  task.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(task.Event)},
			{Key: "request_id", Value: []byte(task.RequestID)},
		},
	}
	return utils.Retry(ctx, p.logger, 3, 500*time.Millisecond, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
