package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/materials-aggregator/internal/domain"
)

const (
	// EventTypeRecordsIngested is the event_type header of every notification.
	EventTypeRecordsIngested = "records.ingested"

	// DefaultServiceName is written to the source header.
	DefaultServiceName = "materials-aggregator"
)

// IngestEvent is the payload of a records.ingested notification.
type IngestEvent struct {
	EventID  string            `json:"event_id"`
	Kind     domain.RecordKind `json:"kind"`
	Source   domain.SourceType `json:"source"`
	Inserted int               `json:"inserted"`
	Fetched  int               `json:"fetched"`
	At       time.Time         `json:"at"`
}

// EmitterConfig configures the Emitter.
type EmitterConfig struct {
	// ServiceName identifies the producing service in message headers.
	ServiceName string

	// Clock stamps events without an At. Defaults to time.Now.
	Clock func() time.Time
}

// Emitter builds Kafka messages from ingest events.
type Emitter struct {
	service string
	now     func() time.Time
}

// NewEmitter creates an Emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Emitter{service: cfg.ServiceName, now: cfg.Clock}
}

// Emit validates ev, fills in the event ID and timestamp when missing and
// returns the message ready to be written.
func (e *Emitter) Emit(ev IngestEvent) (kafka.Message, error) {
	if !ev.Kind.IsValid() {
		return kafka.Message{}, fmt.Errorf("invalid record kind %q", ev.Kind)
	}
	if ev.Source == "" {
		return kafka.Message{}, fmt.Errorf("source is required")
	}
	if ev.Inserted < 0 || ev.Fetched < 0 {
		return kafka.Message{}, fmt.Errorf("counts must not be negative")
	}
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	ev.At = ev.At.UTC()

	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal payload: %w", err)
	}

	return kafka.Message{
		Key:   []byte(MessageKey(ev.Kind, ev.Source)),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(EventTypeRecordsIngested)},
			{Key: "source", Value: []byte(e.service)},
		},
	}, nil
}

// MessageKey returns the partition key for a kind and source.
func MessageKey(kind domain.RecordKind, source domain.SourceType) string {
	return string(kind) + ":" + string(source)
}
