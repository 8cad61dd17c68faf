package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys set by the daemon's HTTP middleware.
const (
	AttrRequestID = attribute.Key("melora.request_id")
	AttrUserID    = attribute.Key("enduser.id")
	AttrErrorCode = attribute.Key("melora.error_code")
)

// untracedRoutes are scraped on a fixed schedule and never traced.
var untracedRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Tracing creates HTTP middleware that instruments requests with OpenTelemetry
// spans and W3C Trace Context propagation. Span names are "METHOD route", with
// routes normalized the same way as the HTTP metrics. Health and metrics
// scrapes pass through untraced.
//
// Place it after RequestID and before Logging: the request id is tagged on the
// span, and Logging copies the user id and error code onto it.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		tagged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestID := GetRequestID(r.Context()); requestID != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(AttrRequestID.String(requestID))
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(tagged, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + NormalizeRoute(r.URL.Path)
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !untracedRoutes[r.URL.Path]
			}),
		)
	}
}
