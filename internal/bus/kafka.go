package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic, keyed by entity id so all
// events for one RFP or session land on the same partition.
type KafkaSink struct {
	writer   messageWriter
	encoding string
	timeout  time.Duration
}

// NewKafkaSink creates a sink writing to opts.Topic on opts.Brokers.
func NewKafkaSink(opts KafkaOptions) (*KafkaSink, error) {
	addrs := opts.Addrs()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	transport, err := opts.Transport(10 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}
	return &KafkaSink{writer: w, encoding: opts.Encoding, timeout: 10 * time.Second}, nil
}

// Handle is an EventBus callback.
func (s *KafkaSink) Handle(ctx context.Context, evt *Event) {
	if err := s.Write(ctx, evt); err != nil {
		slog.Warn("Kafka sink: write failed", "type", evt.Type, "entity", evt.EntityID, "error", err)
	}
}

// Write encodes and publishes one event.
func (s *KafkaSink) Write(ctx context.Context, evt *Event) error {
	value, err := EncodeEvent(evt, s.encoding)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "content-type", Value: []byte(ContentType(s.encoding))},
		},
		Time: evt.Timestamp,
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
