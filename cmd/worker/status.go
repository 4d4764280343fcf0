package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
)

type processorStatus struct {
	Status          string     `json:"status"`
	Running         bool       `json:"running"`
	Published       uint64     `json:"published"`
	Failed          uint64     `json:"failed"`
	Dead            uint64     `json:"dead"`
	Deferred        uint64     `json:"deferred"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// statusMux serves liveness, readiness and metrics for the worker.
func statusMux(c *app.Container) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := c.OutboxProcessor.GetStats()
		status := processorStatus{
			Status:          "ok",
			Running:         stats.IsRunning,
			Published:       stats.PublishedCount,
			Failed:          stats.FailedCount,
			Dead:            stats.DeadCount,
			Deferred:        stats.DeferredCount,
			LagSeconds:      stats.LagSeconds,
			LastError:       stats.LastError,
			LastProcessedAt: stats.LastProcessedAt,
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		health := c.Health.Check(r.Context())
		code := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		c.RecordOutboxStats()
		writeJSON(w, http.StatusOK, c.Metrics.Snapshot())
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
