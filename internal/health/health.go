// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Check statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultTimeout bounds a full Run when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Checker reports whether a dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Result is the outcome of one named check.
type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the outcome of a Run.
type Report struct {
	Healthy bool     `json:"healthy"`
	Results []Result `json:"results"`
}

// Run executes all checkers concurrently and collects the results sorted by name.
// Nil checkers are skipped.
func Run(ctx context.Context, checkers map[string]Checker) Report {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]Result, 0, len(checkers))
	)
	for name, checker := range checkers {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := Result{Name: name, Status: StatusOK}
			if err := checker.HealthCheck(ctx); err != nil {
				res.Status = StatusError
				res.Error = err.Error()
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	report := Report{Healthy: true, Results: results}
	for _, r := range results {
		if r.Status != StatusOK {
			report.Healthy = false
		}
	}
	return report
}
