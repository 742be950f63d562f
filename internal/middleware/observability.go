package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sendqueue/internal/httputil"
	"sendqueue/internal/metrics"
	"sendqueue/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-ID"

// Options configures the admin API middleware.
type Options struct {
	Logger            *logrus.Logger
	Registry          *metrics.Registry
	TrustProxyHeaders bool
	// RouteName maps a request to a low-cardinality metric label. Defaults
	// to the URL path.
	RouteName func(r *http.Request) string
}

// Observability traces, times and logs every request.
func Observability(opts Options) func(http.Handler) http.Handler {
	if opts.Registry == nil {
		opts.Registry = metrics.GetRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	routeName := opts.RouteName
	if routeName == nil {
		routeName = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := httputil.ClientIP(r, opts.TrustProxyHeaders)
			ctx, span := tracing.StartSpan(r.Context(), "http_request",
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("client.address", clientIP),
			)
			defer span.End()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = tracing.GenerateRequestID()
			}
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(RequestIDHeader, requestID)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			route := routeName(r)
			status := strconv.Itoa(wrapper.statusCode)

			span.SetAttributes(
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			setSpanStatus(span, wrapper.statusCode)

			opts.Registry.IncrementCounter("http_requests_total", map[string]string{
				"method":      r.Method,
				"endpoint":    route,
				"status_code": status,
			}, "Admin API requests")
			opts.Registry.RecordTimer("http_request_duration", duration, map[string]string{
				"method":   r.Method,
				"endpoint": route,
			}, "Admin API request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			} else if wrapper.statusCode >= 400 {
				logLevel = logrus.WarnLevel
			}
			opts.Logger.WithFields(logrus.Fields{
				"request_id":  requestID,
				"trace_id":    tracing.GetOtelTraceID(ctx),
				"method":      r.Method,
				"url":         r.URL.Path,
				"status_code": wrapper.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_ip":   clientIP,
				"size_bytes":  wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

func setSpanStatus(span oteltrace.Span, statusCode int) {
	if statusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
		return
	}
	span.SetStatus(codes.Ok, "")
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
