package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// RefreshWorkflowName is the name RefreshWorkflow is registered and started
// under, so starters need not import the workflows package.
const RefreshWorkflowName = "RefreshWorkflow"

// QueryProgress is the query handler exposing refresh progress.
const QueryProgress = "progress"

const (
	DefaultWorkflowExecutionTimeout = 30 * time.Minute
	DefaultHealthCheckTimeout       = 5 * time.Second
	DefaultScheduleID               = "materials-aggregator-refresh"
)

// ClientConfig locates the Temporal frontend.
type ClientConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
	TLS       TLSConfig
	// Logger receives SDK log output. Nil keeps the SDK default.
	Logger             sdklog.Logger
	HealthCheckTimeout time.Duration
}

// NewClient dials the frontend described by cfg.
func NewClient(cfg ClientConfig) (client.Client, error) {
	tlsCfg, err := cfg.TLS.load()
	if err != nil {
		return nil, fmt.Errorf("temporal tls: %w", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:          cfg.HostPort,
		Namespace:         cfg.Namespace,
		Logger:            cfg.Logger,
		ConnectionOptions: client.ConnectionOptions{TLS: tlsCfg},
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// RefreshInput parameterizes one refresh run. It lives here rather than in
// workflows so starters can build it without importing workflow code.
type RefreshInput struct {
	// Kinds selects the feeds to refresh. Empty means every kind.
	Kinds []domain.RecordKind
	// Query is the free-text query. Empty means each source's default.
	Query        string
	MaxPerSource int
}

// RefreshClient starts refresh runs and maintains the periodic schedule.
type RefreshClient struct {
	client        client.Client
	taskQueue     string
	healthTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewRefreshClient(c client.Client, cfg ClientConfig) *RefreshClient {
	timeout := cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}
	return &RefreshClient{client: c, taskQueue: cfg.TaskQueue, healthTimeout: timeout}
}

// Close releases the connection. Later calls are no-ops.
func (c *RefreshClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return
	}
	c.client.Close()
	c.closed = true
}

// usable returns an OpError when the client has been closed.
func (c *RefreshClient) usable(op, target string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &OpError{Op: op, Kind: ErrClientClosed, Target: target}
	}
	return nil
}

// Health probes the frontend within the health timeout.
func (c *RefreshClient) Health(ctx context.Context) error {
	if err := c.usable("health", ""); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	_, err := c.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return opError("health", "", err)
}

// StartRefresh starts an on-demand refresh run and returns its workflow ID.
func (c *RefreshClient) StartRefresh(ctx context.Context, kinds []domain.RecordKind, query string, maxPerSource int) (string, error) {
	if err := c.usable("start refresh", ""); err != nil {
		return "", err
	}

	id := "refresh-" + uuid.NewString()
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}, RefreshWorkflowName, RefreshInput{Kinds: kinds, Query: query, MaxPerSource: maxPerSource})
	if err != nil {
		return "", opError("start refresh", id, err)
	}
	return run.GetID(), nil
}

// GetWorkflowResult blocks until the run finishes and decodes its result.
func (c *RefreshClient) GetWorkflowResult(ctx context.Context, workflowID, runID string, result any) error {
	if err := c.usable("workflow result", workflowID); err != nil {
		return err
	}
	err := c.client.GetWorkflow(ctx, workflowID, runID).Get(ctx, result)
	return opError("workflow result", workflowID, err)
}

func everyInterval(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}

// EnsureSchedule creates the periodic refresh schedule, or retunes the
// interval of an existing one. A run is skipped while the previous one is
// still in flight.
func (c *RefreshClient) EnsureSchedule(ctx context.Context, scheduleID string, interval time.Duration, input RefreshInput) error {
	if scheduleID == "" {
		scheduleID = DefaultScheduleID
	}
	if err := c.usable("ensure schedule", scheduleID); err != nil {
		return err
	}
	if interval <= 0 {
		return &OpError{
			Op:     "ensure schedule",
			Kind:   ErrInvalidArgument,
			Target: scheduleID,
			Err:    fmt.Errorf("interval must be positive, got %s", interval),
		}
	}

	schedules := c.client.ScheduleClient()
	_, err := schedules.Create(ctx, client.ScheduleOptions{
		ID:      scheduleID,
		Spec:    everyInterval(interval),
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:                       scheduleID + "-run",
			Workflow:                 RefreshWorkflowName,
			Args:                     []any{input},
			TaskQueue:                c.taskQueue,
			WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
		},
	})
	if !errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning) {
		return opError("create schedule", scheduleID, err)
	}

	err = schedules.GetHandle(ctx, scheduleID).Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			spec := everyInterval(interval)
			in.Description.Schedule.Spec = &spec
			return &client.ScheduleUpdate{Schedule: &in.Description.Schedule}, nil
		},
	})
	return opError("update schedule", scheduleID, err)
}

// Client exposes the SDK client, e.g. for worker construction.
func (c *RefreshClient) Client() client.Client {
	return c.client
}

func (c *RefreshClient) TaskQueue() string {
	return c.taskQueue
}
