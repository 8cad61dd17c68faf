package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testLogEntry represents a parsed JSON request log line.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Route     string `json:"route"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	TraceID   string `json:"trace_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_DaemonRoutes(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		handler   http.HandlerFunc
		wantRoute string
		wantLevel string
		wantUser  string
		wantCode  string
		wantSize  int
	}{
		{
			name:   "feed snapshot",
			method: http.MethodGet,
			path:   "/feed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"broadcasts":[]}`))
			},
			wantRoute: "/feed",
			wantLevel: "INFO",
			wantSize:  17,
		},
		{
			name:   "like sent by signed-in user",
			method: http.MethodPost,
			path:   "/likes",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetUserID(r.Context(), "u-42")
				w.WriteHeader(http.StatusCreated)
			},
			wantRoute: "/likes",
			wantLevel: "INFO",
			wantUser:  "u-42",
		},
		{
			name:   "rejected mute id",
			method: http.MethodPost,
			path:   "/mutes/users",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetErrorCode(r.Context(), "validation_error")
				w.WriteHeader(http.StatusBadRequest)
			},
			wantRoute: "/mutes/users",
			wantLevel: "WARN",
			wantCode:  "validation_error",
		},
		{
			name:   "refresh while stopped",
			method: http.MethodPost,
			path:   "/feed/refresh",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetErrorCode(r.Context(), "feed_not_running")
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantRoute: "/feed/refresh",
			wantLevel: "ERROR",
			wantCode:  "feed_not_running",
		},
		{
			name:   "failed persist after like",
			method: http.MethodPost,
			path:   "/likes/resume",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetUserID(r.Context(), "u-42")
				SetErrorCode(r.Context(), "persist_failed")
				w.WriteHeader(http.StatusBadGateway)
			},
			wantRoute: "/likes/resume",
			wantLevel: "ERROR",
			wantUser:  "u-42",
			wantCode:  "persist_failed",
		},
		{
			name:   "code on success is dropped",
			method: http.MethodGet,
			path:   "/likes/status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetErrorCode(r.Context(), "not_found")
			},
			wantRoute: "/likes/status",
			wantLevel: "INFO",
		},
		{
			name:      "unknown path",
			method:    http.MethodGet,
			path:      "/broadcasts/b1",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantRoute: RouteOther,
			wantLevel: "WARN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(tt.handler)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			entry := parseEntry(t, buf)
			if entry.Msg != "request completed" {
				t.Errorf("msg = %q, want request completed", entry.Msg)
			}
			if entry.Method != tt.method || entry.Path != tt.path {
				t.Errorf("method/path = %s %s, want %s %s", entry.Method, entry.Path, tt.method, tt.path)
			}
			if entry.Route != tt.wantRoute {
				t.Errorf("route = %q, want %q", entry.Route, tt.wantRoute)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %q, want %q", entry.Level, tt.wantLevel)
			}
			if entry.UserID != tt.wantUser {
				t.Errorf("user_id = %q, want %q", entry.UserID, tt.wantUser)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", entry.ErrorCode, tt.wantCode)
			}
			if entry.Size != tt.wantSize {
				t.Errorf("size = %d, want %d", entry.Size, tt.wantSize)
			}
			if entry.LatencyMS < 0 {
				t.Errorf("latency_ms = %d, want >= 0", entry.LatencyMS)
			}
			if entry.TraceID != "" {
				t.Errorf("trace_id = %q without an active span", entry.TraceID)
			}
		})
	}
}

func TestLogging_RequestIDFromHeader(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodPost, "/location", strings.NewReader(`{}`))
	req.Header.Set(RequestIDHeader, "req-location-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := parseEntry(t, buf).RequestID; got != "req-location-1" {
		t.Errorf("request_id = %q, want req-location-1", got)
	}
}

func TestSetters_OutsideLogging(t *testing.T) {
	// Handlers used without the middleware must not panic.
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	SetUserID(req.Context(), "u1")
	SetErrorCode(req.Context(), "internal_error")
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) returned nil", env)
		}
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated {
		t.Errorf("status = %d, want first call 201", rw.statusCode)
	}
	if w.Code != http.StatusCreated {
		t.Errorf("underlying status = %d, want 201", w.Code)
	}
}

func TestResponseWriter_Write(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	data := []byte(`{"type":"feed","broadcasts":[]}`)
	n, err := rw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(data) || rw.size != int64(len(data)) {
		t.Errorf("wrote %d bytes, size %d, want %d", n, rw.size, len(data))
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := newResponseWriter(rec)

	if _, _, err := rw.Hijack(); err != nil {
		t.Fatalf("Hijack() error = %v", err)
	}
	if !rec.hijacked {
		t.Error("expected underlying writer to be hijacked")
	}
	if rw.statusCode != http.StatusSwitchingProtocols {
		t.Errorf("expected status 101 after hijack, got %d", rw.statusCode)
	}

	plain := newResponseWriter(httptest.NewRecorder())
	if _, _, err := plain.Hijack(); err == nil {
		t.Error("expected error when the underlying writer cannot hijack")
	}
}

func TestLogging_WebsocketUpgradeLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, _ = w.(http.Hijacker).Hijack()
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed/ws", nil))

	entry := parseEntry(t, buf)
	if entry.Status != http.StatusSwitchingProtocols || entry.Route != "/feed/ws" {
		t.Errorf("status/route = %d %s, want 101 /feed/ws", entry.Status, entry.Route)
	}
}
