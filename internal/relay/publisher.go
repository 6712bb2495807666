package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher ships encoded events.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// KafkaPublisher writes to one Kafka topic.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on the comma-separated
// broker list. Messages with the same key land on the same partition.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("relay: no kafka brokers configured")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("relay: no kafka topic configured")
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: time.Now()})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Message is a published key/value pair.
type Message struct {
	Key   []byte
	Value []byte
}

// ChannelPublisher delivers messages to a channel. Used for tests and
// in-process consumers.
type ChannelPublisher struct {
	C chan Message
}

// NewChannelPublisher creates a publisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{C: make(chan Message, buffer)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, key, value []byte) error {
	select {
	case p.C <- Message{Key: key, Value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ChannelPublisher) Close() error { return nil }
