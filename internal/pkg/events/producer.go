package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/studyhive/studyhive/config"
	"github.com/studyhive/studyhive/pkg/workerpool"
)

// Publisher hands domain events to Kafka through the worker pool. A nil
// *Publisher is valid and drops everything, which is the degraded mode used
// when brokers are not configured.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	pool     *workerpool.Pool
	logger   *zap.Logger
}

// NewPublisher connects a SyncProducer to the configured brokers.
func NewPublisher(cfg *config.KafkaConfig, pool *workerpool.Pool, logger *zap.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		producer: producer,
		topic:    cfg.Topic,
		pool:     pool,
		logger:   logger,
	}, nil
}

// NewPublisherWithProducer wires a prebuilt producer (used by tests).
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, pool *workerpool.Pool, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, pool: pool, logger: logger}
}

// Publish enqueues the event for asynchronous delivery. Failures are logged
// and never surfaced: event loss must not fail a committed operation.
func (p *Publisher) Publish(event Event) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode event",
			zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	p.pool.Submit(func() {
		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(event.GroupID),
			Value: sarama.ByteEncoder(data),
		}
		if _, _, err := p.producer.SendMessage(msg); err != nil {
			p.logger.Error("failed to publish event",
				zap.String("type", string(event.Type)),
				zap.String("group_id", event.GroupID),
				zap.Error(err))
		}
	})
}

// Close shuts the underlying producer down.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
