package kafka

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
)

// Producer publishes messages to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	config ProducerConfig
}

// NewProducer creates a new Kafka producer
func NewProducer(config ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	var compression kafka.Compression
	switch config.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	default:
		compression = 0
	}

	// Topic stays empty on the writer so each message can name its own.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              config.BatchSize,
		BatchTimeout:           config.BatchTimeout,
		MaxAttempts:            config.MaxAttempts,
		WriteTimeout:           config.WriteTimeout,
		Compression:            compression,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		config: config,
	}, nil
}

// Publish publishes a message to the default output topic
func (p *Producer) Publish(ctx context.Context, msg *OutputMessage) error {
	return p.PublishToTopic(ctx, p.config.Topic, msg)
}

// PublishToTopic publishes a message to a specific topic
func (p *Producer) PublishToTopic(ctx context.Context, topic string, msg *OutputMessage) error {
	kafkaMsg, err := BuildMessage(topic, msg)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// BuildMessage serializes an OutputMessage into a kafka.Message for topic
func BuildMessage(topic string, msg *OutputMessage) (kafka.Message, error) {
	data, err := msg.ToJSON()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize message: %w", err)
	}

	headers := MessageHeaders{
		CorporationID:  msg.Source.CorporationID,
		SourcePlatform: msg.Source.Platform,
		EventID:        msg.Source.EventID,
		Kind:           msg.Kind.String(),
		MessageType:    msg.Type,
	}
	if msg.TraceID != "" {
		headers.TraceParent = fmt.Sprintf("00-%s-%s-01", msg.TraceID, msg.SpanID)
	}

	kafkaHeaders := make([]kafka.Header, 0)
	for _, h := range headers.ToKafkaHeaders() {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key()),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    msg.Timestamp,
	}, nil
}

// Close closes the producer
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
