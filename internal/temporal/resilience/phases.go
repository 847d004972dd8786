package resilience

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Phases of one kind's refresh. A failed fetch fails the kind, a failed
// persist fails only its source batch, and a failed publish is logged.
const (
	PhaseFetching   = "fetching"
	PhasePersisting = "persisting"
	PhasePublishing = "publishing"
)

// PhaseConfig is the retry and timeout budget of one phase's activity.
type PhaseConfig struct {
	Name string
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	// Timeout bounds one attempt (StartToClose).
	Timeout time.Duration

	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

func (p PhaseConfig) RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    p.InitialBackoff,
		BackoffCoefficient: p.BackoffMultiplier,
		MaximumInterval:    p.MaxBackoff,
		MaximumAttempts:    int32(p.MaxAttempts),
	}
}

func (p PhaseConfig) ActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: p.Timeout,
		RetryPolicy:         p.RetryPolicy(),
	}
}

// WorstCaseDuration is the time a phase can take when every attempt times
// out, backoffs included.
func (p PhaseConfig) WorstCaseDuration() time.Duration {
	if p.MaxAttempts <= 0 {
		return 0
	}
	total := time.Duration(p.MaxAttempts) * p.Timeout
	wait := p.InitialBackoff
	for i := 1; i < p.MaxAttempts; i++ {
		total += wait
		wait = min(time.Duration(float64(wait)*p.BackoffMultiplier), p.MaxBackoff)
	}
	return total
}

// DefaultPhaseConfigs returns the budgets RefreshWorkflow runs with.
func DefaultPhaseConfigs() map[string]PhaseConfig {
	storage := PhaseConfig{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        10 * time.Second,
	}

	fetching := PhaseConfig{
		Name:              PhaseFetching,
		MaxAttempts:       3,
		Timeout:           3 * time.Minute,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        time.Minute,
	}
	persisting := storage
	persisting.Name = PhasePersisting
	persisting.Timeout = 30 * time.Second
	publishing := storage
	publishing.Name = PhasePublishing
	publishing.Timeout = 30 * time.Second

	return map[string]PhaseConfig{
		PhaseFetching:   fetching,
		PhasePersisting: persisting,
		PhasePublishing: publishing,
	}
}
