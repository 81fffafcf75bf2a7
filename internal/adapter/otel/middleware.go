package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware traces API requests. Spans are named after the matched chi
// route so strategy IDs do not end up in span names. Health probes are not
// traced.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
				}
			}
		})
		return otelhttp.NewHandler(named, serviceName,
			otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method }),
		)
	}
}
