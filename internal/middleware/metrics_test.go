package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/feed", "/feed"},
		{"/feed/ws", "/feed/ws"},
		{"/mutes/tracks", "/mutes/tracks"},
		{"/likes/status", "/likes/status"},
		{"/feed/123", RouteOther},
		{"/", RouteOther},
		{"/admin/../etc/passwd", RouteOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NormalizeRoute(tt.path); got != tt.want {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected error registering twice")
	}
}

func TestHTTPMetrics(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		status      int
		wantPath    string
		wantMetrics bool
	}{
		{
			name:        "feed read",
			method:      http.MethodGet,
			path:        "/feed",
			status:      http.StatusOK,
			wantPath:    "/feed",
			wantMetrics: true,
		},
		{
			name:        "mute with body",
			method:      http.MethodPost,
			path:        "/mutes/users",
			body:        `{"id":"u1"}`,
			status:      http.StatusNoContent,
			wantPath:    "/mutes/users",
			wantMetrics: true,
		},
		{
			name:        "unknown path collapses",
			method:      http.MethodGet,
			path:        "/nope/123",
			status:      http.StatusNotFound,
			wantPath:    RouteOther,
			wantMetrics: true,
		},
		{
			name:   "health excluded",
			method: http.MethodGet,
			path:   "/health",
			status: http.StatusOK,
		},
		{
			name:   "websocket excluded",
			method: http.MethodGet,
			path:   "/feed/ws",
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			reg := prometheus.NewRegistry()
			if err := m.Register(reg); err != nil {
				t.Fatalf("Register() failed: %v", err)
			}

			handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{}`))
			}))

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			families, err := reg.Gather()
			if err != nil {
				t.Fatalf("Gather() failed: %v", err)
			}
			total := findCounter(families, MetricHTTPRequestsTotal)
			if !tt.wantMetrics {
				if total != nil {
					t.Errorf("expected no request metrics for %s", tt.path)
				}
				return
			}
			if total == nil {
				t.Fatalf("expected %s to be recorded", MetricHTTPRequestsTotal)
			}
			if got := total.GetCounter().GetValue(); got != 1 {
				t.Errorf("requests = %v, want 1", got)
			}
			labels := map[string]string{}
			for _, lp := range total.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] != tt.wantPath || labels["method"] != tt.method {
				t.Errorf("labels = %v, want path %s method %s", labels, tt.wantPath, tt.method)
			}
		})
	}
}

func findCounter(families []*dto.MetricFamily, name string) *dto.Metric {
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0]
		}
	}
	return nil
}
