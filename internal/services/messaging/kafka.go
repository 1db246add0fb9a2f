package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/config"
)

// Keyed values choose their own Kafka partition key
type Keyed interface {
	PartitionKey() string
}

// KafkaPublisher publishes alert events to a single Kafka topic. The NATS-style subject
// is carried in a header so consumers can tell event types apart.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	closed   atomic.Bool
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "detectorx-worker"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka producer established")
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Name() string { return config.EventBusKafka }

func (p *KafkaPublisher) Publish(subject string, data interface{}) error {
	if p.closed.Load() {
		return fmt.Errorf("kafka publisher closed")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("subject"), Value: []byte(subject)},
		},
	}
	if k, ok := data.(Keyed); ok {
		msg.Key = sarama.StringEncoder(k.PartitionKey())
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send to Kafka topic %s: %w", p.topic, err)
	}

	log.Debug().
		Str("topic", p.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Event sent to Kafka")
	return nil
}

func (p *KafkaPublisher) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
