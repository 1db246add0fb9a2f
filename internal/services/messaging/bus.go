package messaging

import (
	"context"
	"fmt"
	"strings"

	"detectorx-worker-go/internal/config"
)

// Bus is an event bus the alert dispatcher can publish to
type Bus interface {
	Name() string
	Publish(subject string, data interface{}) error
	Shutdown(ctx context.Context) error
}

// Open connects the event bus selected by cfg.EventBus. It returns nil, nil when the bus is disabled.
func Open(cfg *config.Config) (Bus, error) {
	switch strings.ToLower(cfg.EventBus) {
	case "", config.EventBusNone:
		return nil, nil
	case config.EventBusNATS:
		svc, err := NewService(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return svc, nil
	case config.EventBusKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka event bus selected but KAFKA_BROKERS is empty")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus)
	}
}
