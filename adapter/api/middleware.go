package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/rs/cors"
)

const (
	requestIDHeader     = "X-Request-ID"
	correlationIDHeader = "X-Correlation-ID"
)

// statusRecorder captures the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestContext attaches request and correlation IDs, echoes them on the
// response and logs one line per request.
func requestContext(logger *slog.Logger, metrics observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := observability.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		ctx = observability.WithCorrelationID(ctx, r.Header.Get(correlationIDHeader))
		r = r.WithContext(ctx)

		w.Header().Set(requestIDHeader, observability.RequestIDFromContext(ctx))
		w.Header().Set(correlationIDHeader, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		tags := []observability.Tag{
			observability.T("route", route),
			observability.T(observability.StatusKey, strconv.Itoa(rec.status)),
		}
		metrics.Counter(observability.MetricHTTPRequests, 1, tags...)
		metrics.Timing(observability.MetricHTTPDuration, duration, tags...)

		logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			observability.StatusKey, rec.status,
			observability.DurationKey, duration.Milliseconds(),
		)
	})
}

// requireUser reads the caller from header and stores it in the request
// context. Requests without it are rejected with 401.
func requireUser(header string, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(header))
		if userID == "" {
			writeDomainError(w, r, logger, errUnauthenticated)
			return
		}
		next(w, r.WithContext(observability.WithUserID(r.Context(), userID)))
	}
}

// withCORS wraps next with the configured cross-origin policy.
func withCORS(allowedOrigins []string, authHeader string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", authHeader, requestIDHeader, correlationIDHeader},
		ExposedHeaders: []string{requestIDHeader, correlationIDHeader},
	}).Handler(next)
}
