package api

import (
	"net/http"
	"time"

	"github.com/TimBasler1996/Melora-sub001/internal/health"
)

// HealthHandlers serves the dependency health check.
type HealthHandlers struct {
	checkers map[string]health.Checker
}

// NewHealthHandlers creates a health handler over the named checkers.
func NewHealthHandlers(checkers map[string]health.Checker) *HealthHandlers {
	return &HealthHandlers{checkers: checkers}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string          `json:"status"`
	Checks    []health.Result `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Health handles GET /health. Returns 503 if any checker fails.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), h.checkers)

	status := "healthy"
	statusCode := http.StatusOK
	if !report.Healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, r.Context(), statusCode, HealthResponse{
		Status:    status,
		Checks:    report.Results,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
