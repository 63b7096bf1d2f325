package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/confluentinc/confluent-kafka-go/kafka"
)

type KafkaConfig struct {
	Host  string `mapstructure:"host"`
	Port  string `mapstructure:"port"`
	Topic string `mapstructure:"topic"`
}

func (c KafkaConfig) Validate() error {
	if c.Host == "" {
		return errors.New("kafka host is required")
	}
	if c.Port == "" {
		return errors.New("kafka port is required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

// KafkaChannel publishes alerts to a topic for SIEM ingestion. Alerts are
// keyed by identifier so all events for one client land on one partition.
type KafkaChannel struct {
	cfg      KafkaConfig
	producer *kafka.Producer
}

func NewKafkaChannel(cfg KafkaConfig) (*KafkaChannel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaChannel{
		cfg:      cfg,
		producer: producer,
	}, nil
}

func (c *KafkaChannel) Name() string {
	return "kafka"
}

func (c *KafkaChannel) Send(ctx context.Context, alert types.SecurityAlert) error {
	if c.producer == nil {
		return errors.New("kafka producer is not initialized")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = c.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &c.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(alert.Identifier),
		Value:          data,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event type %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *KafkaChannel) Close() {
	if c.producer != nil {
		c.producer.Flush(5000)
		c.producer.Close()
	}
}
