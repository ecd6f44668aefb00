// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink publishes audit events to a Kafka topic. It is optional: when
// no brokers are configured the relay runs with the log sink alone.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.SugaredLogger
}

// NewKafkaSink creates a Kafka-backed audit sink.
func NewKafkaSink(brokers []string, topic string, logger *zap.SugaredLogger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka audit sink requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka audit sink requires a topic")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           100 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logger.Infow("Kafka audit sink initialized", "brokers", brokers, "topic", topic)
	return &KafkaSink{writer: writer, logger: logger.Named("audit-kafka")}, nil
}

// Write publishes one event, keyed by event type so consumers can partition
// by category.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event %s: %w", event.ID, err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing audit event %s to kafka: %w", event.ID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	return "kafka"
}
