package observability

import (
	"context"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// SetupTracing installs an SDK tracer provider for the given service and
// returns its shutdown func. Spans are sampled and kept in-process; an
// exporter can be added through opts.
func SetupTracing(service string, opts ...sdktrace.TracerProviderOption) (oteltrace.Tracer, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Tracer(service), tp.Shutdown
}

// Middleware counts every request and wraps it in a span. route resolves the
// low-cardinality route label (e.g. the chi route pattern) after the handler ran.
func Middleware(m *Metrics, tracer oteltrace.Tracer, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			req := r.WithContext(ctx)
			next.ServeHTTP(rw, req)

			span.SetAttributes(attribute.Int("http.status_code", rw.status))
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}
			span.End()

			if m != nil {
				label := r.URL.Path
				if route != nil {
					if p := route(req); p != "" {
						label = p
					}
				}
				m.ServerRequests.WithLabelValues(label, r.Method, strconv.Itoa(rw.status)).Inc()
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
