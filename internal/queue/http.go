package queue

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status      string  `json:"status"`
	Online      bool    `json:"online"`
	Total       int     `json:"queued"`
	Pending     int     `json:"pending"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	OldestWaitS float64 `json:"oldest_wait_seconds"`
}

// Handler serves /healthz with the queue summary and, when gatherer is non-nil,
// /metrics for Prometheus.
func Handler(q *Queue, network Reachability, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:      "ok",
			Online:      network.Online(),
			Total:       stats.Total,
			Pending:     stats.Pending,
			Failed:      stats.Failed,
			Skipped:     stats.Skipped,
			OldestWaitS: stats.OldestWait.Seconds(),
		})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
