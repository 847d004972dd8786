package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/materials-aggregator/internal/config"
)

// Publisher delivers ingest notifications.
type Publisher interface {
	Publish(ctx context.Context, events ...IngestEvent) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
// This interface allows for easy mocking in tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder receives one call per Publish.
type Recorder interface {
	RecordNotification(err error)
}

// KafkaPublisher writes notifications to a Kafka topic.
type KafkaPublisher struct {
	writer   MessageWriter
	emitter  *Emitter
	recorder Recorder
	logger   zerolog.Logger
}

// PublisherOption configures a KafkaPublisher.
type PublisherOption func(*KafkaPublisher)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) PublisherOption {
	return func(p *KafkaPublisher) { p.recorder = r }
}

// WithEmitter replaces the default Emitter.
func WithEmitter(e *Emitter) PublisherOption {
	return func(p *KafkaPublisher) {
		if e != nil {
			p.emitter = e
		}
	}
}

// NewKafkaPublisher builds a publisher backed by a kafka-go Writer.
func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger, opts ...PublisherOption) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisher(w, logger, opts...), nil
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter, logger zerolog.Logger, opts ...PublisherOption) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  w,
		emitter: NewEmitter(EmitterConfig{}),
		logger:  logger.With().Str("component", "outbox").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes and writes events in one batch. An event that fails to
// encode aborts the whole call before anything is written.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...IngestEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := p.emitter.Emit(ev)
		if err != nil {
			return fmt.Errorf("build %s/%s notification: %w", ev.Kind, ev.Source, err)
		}
		msgs = append(msgs, msg)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	if p.recorder != nil {
		p.recorder.RecordNotification(err)
	}
	if err != nil {
		p.logger.Error().Err(err).Int("messages", len(msgs)).Msg("failed to publish ingest notifications")
		return fmt.Errorf("write messages: %w", err)
	}

	p.logger.Debug().Int("messages", len(msgs)).Msg("published ingest notifications")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards notifications. It is used when Kafka is disabled.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, ...IngestEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// New returns a KafkaPublisher when cfg.Enabled and a NopPublisher otherwise.
func New(cfg config.KafkaConfig, logger zerolog.Logger, opts ...PublisherOption) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg, logger, opts...)
}
