package temporal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// WorkerConfig sizes the refresh worker. Zero fields take the defaults of
// DefaultWorkerConfig.
type WorkerConfig struct {
	TaskQueue               string
	ActivityConcurrency     int
	WorkflowTaskConcurrency int
	Pollers                 int
	// StopTimeout is how long in-flight activities get to finish on shutdown.
	StopTimeout time.Duration
}

// DefaultWorkerConfig suits a refresh run of a handful of activities per kind.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:               taskQueue,
		ActivityConcurrency:     20,
		WorkflowTaskConcurrency: 10,
		Pollers:                 2,
		StopTimeout:             30 * time.Second,
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (c WorkerConfig) options() worker.Options {
	def := DefaultWorkerConfig(c.TaskQueue)
	pollers := orDefault(c.Pollers, def.Pollers)
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     orDefault(c.ActivityConcurrency, def.ActivityConcurrency),
		MaxConcurrentWorkflowTaskExecutionSize: orDefault(c.WorkflowTaskConcurrency, def.WorkflowTaskConcurrency),
		MaxConcurrentActivityTaskPollers:       pollers,
		MaxConcurrentWorkflowTaskPollers:       pollers,
		WorkerStopTimeout:                      orDefault(c.StopTimeout, def.StopTimeout),
	}
}

// registrar is the part of worker.Worker the manager drives.
type registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
	Start() error
	Stop()
}

// WorkerManager owns the worker polling the refresh task queue.
type WorkerManager struct {
	worker    registrar
	taskQueue string
	workflows []string
	logger    zerolog.Logger
}

func NewWorkerManager(c client.Client, cfg WorkerConfig, logger zerolog.Logger) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, errors.New("worker: task queue is required")
	}
	return newWorkerManager(worker.New(c, cfg.TaskQueue, cfg.options()), cfg.TaskQueue, logger), nil
}

func newWorkerManager(w registrar, taskQueue string, logger zerolog.Logger) *WorkerManager {
	return &WorkerManager{
		worker:    w,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "temporal_worker").Str("task_queue", taskQueue).Logger(),
	}
}

// RegisterWorkflow registers fn under name, the name starters use.
func (m *WorkerManager) RegisterWorkflow(fn interface{}, name string) {
	m.worker.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
	m.workflows = append(m.workflows, name)
}

// RegisterActivity registers an activity function, or every exported method
// of a struct.
func (m *WorkerManager) RegisterActivity(a interface{}) {
	m.worker.RegisterActivity(a)
}

func (m *WorkerManager) Workflows() []string {
	return append([]string(nil), m.workflows...)
}

func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start polls until ctx is done, then stops the worker and returns ctx.Err().
func (m *WorkerManager) Start(ctx context.Context) error {
	if err := m.worker.Start(); err != nil {
		return err
	}
	m.logger.Info().Strs("workflows", m.workflows).Msg("worker polling")

	<-ctx.Done()
	m.logger.Info().Msg("worker stopping")
	m.worker.Stop()
	return ctx.Err()
}
