package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes events as JSON messages to one topic
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewKafkaPublisher creates an asynchronous producer that waits for all
// in-sync replicas. Publish only queues the message; delivery failures are
// logged when the batch completes. A nil logger discards them.
func NewKafkaPublisher(brokers []string, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &KafkaPublisher{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	p.log.Warnw("kafka_delivery_failed", "topic", p.writer.Topic, "messages", len(msgs), "err", err)
}

// Publish queues ev without waiting for the broker
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Close flushes queued messages and stops the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func message(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return kafka.Message{
		Key:   []byte(ev.Key()),
		Value: value,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Kind)},
		},
	}, nil
}
