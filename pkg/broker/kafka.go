// Package broker publishes domain events to Kafka with segmentio/kafka-go.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher JSON-encodes events onto one topic.
type Publisher struct {
	w     Writer
	topic string
}

// NewKafkaPublisher writes to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{w: w, topic: topic}
}

// NewPublisher wraps an existing writer.
func NewPublisher(w Writer, topic string) *Publisher {
	return &Publisher{w: w, topic: topic}
}

// Publish sends v under key. Messages with the same key land on the same
// partition, so per-order events stay ordered.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: encode %s: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("broker: publish %s to %s: %w", eventType, p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.w.Close() }
