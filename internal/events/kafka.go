package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes order paid events to a topic keyed by gateway order id,
// so every event of one order lands on the same partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error { return p.w.Close() }

func (p *KafkaPublisher) PublishOrderPaid(ctx context.Context, evt OrderPaid) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.GatewayOrderID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("order.paid")},
		},
	})
}
