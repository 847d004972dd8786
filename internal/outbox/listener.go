package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// RefreshRequest asks the worker for an immediate refresh.
type RefreshRequest struct {
	Kinds        []domain.RecordKind `json:"kinds"`
	Query        string              `json:"query"`
	MaxPerSource int                 `json:"max_per_source"`
}

// RefreshStarter starts a refresh run and returns its workflow ID.
type RefreshStarter interface {
	StartRefresh(ctx context.Context, kinds []domain.RecordKind, query string, maxPerSource int) (string, error)
}

// MessageReader is the subset of *kafka.Reader used by Listener.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ListenerConfig holds configuration for the refresh request listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic carries refresh requests.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Listener consumes refresh requests and starts refresh runs.
type Listener struct {
	reader  MessageReader
	starter RefreshStarter
	logger  zerolog.Logger
}

// NewListener creates a listener backed by a kafka-go Reader.
func NewListener(cfg ListenerConfig, starter RefreshStarter, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return NewListenerWithReader(reader, starter, logger)
}

// NewListenerWithReader creates a listener over an existing reader.
func NewListenerWithReader(reader MessageReader, starter RefreshStarter, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:  reader,
		starter: starter,
		logger:  logger.With().Str("component", "refresh_listener").Logger(),
	}
}

// Run reads until ctx is cancelled. Undecodable or invalid messages are
// logged and skipped.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting refresh listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("refresh listener stopped via context cancellation")
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received refresh request")

		var req RefreshRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal refresh request")
			continue
		}

		if err := l.handle(ctx, req); err != nil {
			l.logger.Error().Err(err).Msg("failed to handle refresh request")
		}
	}
}

func (l *Listener) handle(ctx context.Context, req RefreshRequest) error {
	for _, k := range req.Kinds {
		if !k.IsValid() {
			return fmt.Errorf("invalid record kind %q", k)
		}
	}

	workflowID, err := l.starter.StartRefresh(ctx, req.Kinds, req.Query, req.MaxPerSource)
	if err != nil {
		return fmt.Errorf("start refresh: %w", err)
	}

	l.logger.Info().
		Str("workflow_id", workflowID).
		Interface("kinds", req.Kinds).
		Str("query", req.Query).
		Msg("started refresh")
	return nil
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing refresh listener")
	return l.reader.Close()
}
