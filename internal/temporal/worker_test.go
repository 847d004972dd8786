package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/workflow"
)

// fakeWorker records what WorkerManager asks of its worker.
type fakeWorker struct {
	startErr   error
	started    bool
	stopped    bool
	workflows  []workflow.RegisterOptions
	activities int
}

func (f *fakeWorker) Start() error {
	f.started = true
	return f.startErr
}

func (f *fakeWorker) Stop() { f.stopped = true }

func (f *fakeWorker) RegisterWorkflowWithOptions(_ interface{}, opts workflow.RegisterOptions) {
	f.workflows = append(f.workflows, opts)
}

func (f *fakeWorker) RegisterActivity(interface{}) { f.activities++ }

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig("test-queue")

	assert.Equal(t, "test-queue", cfg.TaskQueue)
	assert.Equal(t, 20, cfg.ActivityConcurrency)
	assert.Equal(t, 10, cfg.WorkflowTaskConcurrency)
	assert.Equal(t, 2, cfg.Pollers)
	assert.Equal(t, 30*time.Second, cfg.StopTimeout)
}

func TestNewWorkerManager_RequiresTaskQueue(t *testing.T) {
	_, err := NewWorkerManager(nil, WorkerConfig{}, zerolog.Nop())
	assert.ErrorContains(t, err, "task queue is required")
}

func TestWorkerConfig_Options(t *testing.T) {
	t.Run("zero values take defaults", func(t *testing.T) {
		opts := WorkerConfig{}.options()

		assert.Equal(t, 20, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 10, opts.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 2, opts.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 2, opts.MaxConcurrentWorkflowTaskPollers)
		assert.Equal(t, 30*time.Second, opts.WorkerStopTimeout)
	})

	t.Run("set values win", func(t *testing.T) {
		opts := WorkerConfig{ActivityConcurrency: 50, Pollers: 6, StopTimeout: time.Minute}.options()

		assert.Equal(t, 50, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 10, opts.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 6, opts.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 6, opts.MaxConcurrentWorkflowTaskPollers)
		assert.Equal(t, time.Minute, opts.WorkerStopTimeout)
	})
}

func TestWorkerManager_Register(t *testing.T) {
	w := &fakeWorker{}

	m := newWorkerManager(w, "q", zerolog.Nop())
	m.RegisterWorkflow(func(workflow.Context) error { return nil }, RefreshWorkflowName)
	m.RegisterActivity(func(context.Context) error { return nil })

	assert.Equal(t, []string{RefreshWorkflowName}, m.Workflows())
	assert.Equal(t, []workflow.RegisterOptions{{Name: RefreshWorkflowName}}, w.workflows)
	assert.Equal(t, 1, w.activities)
	assert.Equal(t, "q", m.TaskQueue())
}

func TestWorkerManager_Start(t *testing.T) {
	t.Run("stops when context is cancelled", func(t *testing.T) {
		w := &fakeWorker{}
		m := newWorkerManager(w, "q", zerolog.Nop())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := m.Start(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, w.started)
		assert.True(t, w.stopped)
	})

	t.Run("returns start error", func(t *testing.T) {
		w := &fakeWorker{startErr: errors.New("namespace not found")}
		m := newWorkerManager(w, "q", zerolog.Nop())

		err := m.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "namespace not found")
		assert.False(t, w.stopped)
	})
}
