// Package monitoring evaluates the health of the notification backend's
// dependencies: the notification store, the Redis relay and the live hub.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// severity orders statuses so the worst one wins.
func (s ProbeStatus) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Success is true only when every check is up.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck builds a Check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "no probe registered"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager holds the liveness and readiness checks served under /health.
type HealthManager struct {
	mu        sync.RWMutex
	liveness  []Check
	readiness []Check
	timeout   time.Duration
	now       func() time.Time
}

// HealthOption customises a HealthManager.
type HealthOption func(*HealthManager)

// WithCheckTimeout bounds the total time a single evaluation may take.
func WithCheckTimeout(timeout time.Duration) HealthOption {
	return func(m *HealthManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager(opts ...HealthOption) *HealthManager {
	m := &HealthManager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterLiveness adds a check that must pass for the process to be considered alive.
func (m *HealthManager) RegisterLiveness(check Check) {
	m.register(&m.liveness, check)
}

// RegisterReadiness adds a check that must pass before traffic is routed here.
func (m *HealthManager) RegisterReadiness(check Check) {
	m.register(&m.readiness, check)
}

func (m *HealthManager) register(into *[]Check, check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	*into = append(*into, check)
	m.mu.Unlock()
}

// EvaluateLiveness runs every liveness check.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.liveness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// EvaluateReadiness runs every readiness check.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readiness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// evaluate runs checks concurrently and keeps results in registration order.
func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.timeout > 0 && len(checks) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := summarize(results)
	report.CheckedAt = m.now().UTC()
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: panicDetails(rec)}
		}
		result.Component = check.Name
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
	}()

	return check.Run(ctx)
}

func panicDetails(rec any) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("panic: %v", v)
	}
}

// MergeReports folds liveness and readiness into the single /health payload.
func MergeReports(live, ready HealthReport) HealthReport {
	results := make([]ProbeResult, 0, len(live.Checks)+len(ready.Checks))
	results = append(results, live.Checks...)
	results = append(results, ready.Checks...)

	merged := summarize(results)
	merged.CheckedAt = live.CheckedAt
	if ready.CheckedAt.After(merged.CheckedAt) {
		merged.CheckedAt = ready.CheckedAt
	}
	return merged
}

func summarize(results []ProbeResult) HealthReport {
	worst := StatusUp
	for _, result := range results {
		if result.Status.severity() > worst.severity() {
			worst = result.Status
		}
	}
	return HealthReport{Success: worst == StatusUp, Status: worst, Checks: results}
}

// ResultFromError maps a probe error to a result. Timeouts and cancellation
// count as degraded rather than down.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	result := ProbeResult{Component: component, Status: StatusUp, Duration: max(duration, 0)}
	if err == nil {
		return result
	}

	result.Details = err.Error()
	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	return result
}
