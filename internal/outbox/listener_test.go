package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// mockReader replays queued messages, then blocks until the context is done.
type mockReader struct {
	mu     sync.Mutex
	queue  []readResult
	closed bool
}

type readResult struct {
	msg kafka.Message
	err error
}

func (m *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return r.msg, r.err
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) Close() error {
	m.closed = true
	return nil
}

func (m *mockReader) remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

type startCall struct {
	kinds        []domain.RecordKind
	query        string
	maxPerSource int
}

type mockStarter struct {
	mu    sync.Mutex
	calls []startCall
	err   error
}

func (m *mockStarter) StartRefresh(_ context.Context, kinds []domain.RecordKind, query string, maxPerSource int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, startCall{kinds, query, maxPerSource})
	if m.err != nil {
		return "", m.err
	}
	return "refresh-1", nil
}

func (m *mockStarter) snapshot() []startCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]startCall(nil), m.calls...)
}

func runListener(t *testing.T, reader *mockReader, starter *mockStarter) {
	t.Helper()
	l := NewListenerWithReader(reader, starter, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.remaining() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestListener_StartsRefresh(t *testing.T) {
	reader := &mockReader{queue: []readResult{
		{msg: kafka.Message{Value: []byte(`{"kinds":["paper","news"],"query":"perovskite","max_per_source":5}`)}},
	}}
	starter := &mockStarter{}

	runListener(t, reader, starter)

	require.Eventually(t, func() bool { return len(starter.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	call := starter.snapshot()[0]
	assert.Equal(t, []domain.RecordKind{domain.KindPaper, domain.KindNews}, call.kinds)
	assert.Equal(t, "perovskite", call.query)
	assert.Equal(t, 5, call.maxPerSource)
}

func TestListener_SkipsBadMessages(t *testing.T) {
	reader := &mockReader{queue: []readResult{
		{err: errors.New("coordinator not available")},
		{msg: kafka.Message{Value: []byte(`not json`)}},
		{msg: kafka.Message{Value: []byte(`{"kinds":["podcast"]}`)}},
		{msg: kafka.Message{Value: []byte(`{}`)}},
	}}
	starter := &mockStarter{}

	runListener(t, reader, starter)

	require.Eventually(t, func() bool { return len(starter.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, starter.snapshot()[0].kinds)
}

func TestListener_StarterErrorKeepsRunning(t *testing.T) {
	reader := &mockReader{queue: []readResult{
		{msg: kafka.Message{Value: []byte(`{"kinds":["event"]}`)}},
		{msg: kafka.Message{Value: []byte(`{"kinds":["paper"]}`)}},
	}}
	starter := &mockStarter{err: errors.New("temporal unavailable")}

	runListener(t, reader, starter)

	require.Eventually(t, func() bool { return len(starter.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestListener_Close(t *testing.T) {
	reader := &mockReader{}
	l := NewListenerWithReader(reader, &mockStarter{}, zerolog.Nop())
	require.NoError(t, l.Close())
	assert.True(t, reader.closed)
}
