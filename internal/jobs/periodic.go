// Package jobs runs cancellable periodic background tasks and reports their
// outcomes as Prometheus metrics.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the default interval between ticks.
const DefaultPollInterval = 5 * time.Second

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// JobMetrics records run outcomes. *Metrics implements it.
type JobMetrics interface {
	RunSucceeded(job string, seconds float64, now time.Time)
	RunFailed(job, errorType string, seconds float64)
	RunCanceled(job string)
}

// PeriodicConfig configures a Periodic job.
type PeriodicConfig struct {
	// JobType labels logs and metrics (e.g., JobTypeFeedPoll).
	JobType string
	// Interval is the duration between ticks.
	Interval time.Duration
	// Timeout bounds each run. Zero means the run is bounded only by the job context.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking. Optional.
	Metrics JobMetrics
}

// Periodic runs a Task on a fixed interval until stopped.
// Runs never overlap: a slow run delays the next tick.
type Periodic struct {
	config PeriodicConfig
	task   Task

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPeriodic creates a periodic job running task.
func NewPeriodic(config PeriodicConfig, task Task) *Periodic {
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.JobType == "" {
		config.JobType = "periodic"
	}
	return &Periodic{config: config, task: task}
}

// Start begins ticking. Returns immediately; the job runs in a background
// goroutine until Stop is called or ctx is canceled. Idempotent.
func (p *Periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.run(ctx, stopCh, doneCh)
	return nil
}

// Stop signals the job to stop and waits for an in-progress run to finish.
// Safe to call multiple times.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning returns whether the job is currently running.
func (p *Periodic) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Periodic) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Runs are canceled as soon as Stop is called.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		select {
		case <-runCtx.Done():
			p.config.Logger.Debug("periodic job stopping", "job_type", p.config.JobType)
			return
		case <-ticker.C:
			_ = p.runOnce(runCtx)
		}
	}
}

func (p *Periodic) runOnce(parent context.Context) error {
	ctx := parent
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, p.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.task(ctx)
	duration := time.Since(start).Seconds()

	m := p.config.Metrics
	// A run interrupted by shutdown is neither a success nor a failure.
	if err != nil && parent.Err() != nil {
		if m != nil {
			m.RunCanceled(p.config.JobType)
		}
		return err
	}

	if err != nil {
		errorType := ErrorTypeTask
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = ErrorTypeTimeout
		}
		p.config.Logger.Warn("periodic job run failed",
			"job_type", p.config.JobType,
			"error_type", errorType,
			"duration_seconds", duration,
			"error", err)
		if m != nil {
			m.RunFailed(p.config.JobType, errorType, duration)
		}
		return err
	}

	if m != nil {
		m.RunSucceeded(p.config.JobType, duration, time.Now())
	}
	p.config.Logger.Debug("periodic job run completed",
		"job_type", p.config.JobType,
		"duration_seconds", duration)
	return nil
}
