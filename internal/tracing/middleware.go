package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig configures the HTTP tracing middleware.
type MiddlewareConfig struct {
	// Tracer creates the per-request server spans. If nil, the middleware
	// is a pass-through with no tracing overhead.
	Tracer trace.Tracer

	// RequestID extracts the request id from the request context for the
	// http.request_id attribute. Optional.
	RequestID func(ctx context.Context) string
}

// NewHTTPMiddleware returns middleware that opens one SERVER span per
// request, named "http.<METHOD> <path>". Handlers attach domain
// attributes to it via trace.SpanFromContext. A 5xx response marks the
// span as an error; client errors do not.
func NewHTTPMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Tracer == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			spanName := fmt.Sprintf("%s%s %s", SpanPrefixHTTP, r.Method, r.URL.Path)
			ctx, span := cfg.Tracer.Start(r.Context(), spanName,
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String(AttrHTTPMethod, r.Method),
				attribute.String(AttrHTTPPath, r.URL.Path),
			}
			if cfg.RequestID != nil {
				if id := cfg.RequestID(ctx); id != "" {
					attrs = append(attrs, attribute.String(AttrHTTPRequestID, id))
				}
			}
			span.SetAttributes(attrs...)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int(AttrHTTPStatusCode, sw.status))
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// statusWriter records the response status for span attributes.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush passes through so event streams keep flushing under tracing.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
