// Package outbox publishes "records ingested" notifications to Kafka after a
// batch of records has been persisted.
//
// # Components
//
//   - Emitter: turns a persistence outcome into an IngestEvent and its Kafka message
//   - Publisher: writes messages through a kafka-go Writer
//   - Listener: consumes refresh requests and hands them to a RefreshStarter
//
// # Message format
//
// Each message value is a JSON object:
//
//	{"event_id":"...","kind":"paper","source":"arxiv","inserted":3,"fetched":10,"at":"2024-06-01T08:00:00Z"}
//
// The key is "<kind>:<source>" so that all notifications for one source land
// on the same partition and stay ordered.
//
// # Usage
//
//	pub, err := outbox.NewKafkaPublisher(cfg.Kafka, logger)
//	...
//	err = pub.Publish(ctx, outbox.IngestEvent{Kind: domain.KindPaper, Source: domain.SourceArXiv, Inserted: 3, Fetched: 10})
package outbox
