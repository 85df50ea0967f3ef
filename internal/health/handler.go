// Package health reports process liveness and dependency reachability.
package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"autotrader/internal/httputil"
)

type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
	httpAddr  string
}

// NewHandler builds the health handler. pool may be nil when running on the
// in-memory store.
func NewHandler(pool *pgxpool.Pool, startedAt time.Time, httpAddr string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, startedAt: start, httpAddr: httpAddr}
}

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	UptimeSec int64         `json:"uptime_sec"`
	HTTPAddr  string        `json:"http_addr"`
	Runtime   runtimeStats  `json:"runtime"`
	Database  databaseStats `json:"database"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	CPUCount   int    `json:"cpu_count"`
}

type databaseStats struct {
	Mode      string `json:"mode"`
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(now.Sub(h.startedAt).Seconds()),
		HTTPAddr:  h.httpAddr,
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			CPUCount:   runtime.NumCPU(),
		},
		Database: h.checkDatabase(r.Context()),
	}
	status := http.StatusOK
	if !resp.Database.Reachable && resp.Database.Mode == "postgres" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) checkDatabase(ctx context.Context) databaseStats {
	if h.pool == nil {
		return databaseStats{Mode: "memory", Reachable: true}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := h.pool.Ping(ctx); err != nil {
		return databaseStats{Mode: "postgres", Error: err.Error()}
	}
	return databaseStats{Mode: "postgres", Reachable: true, PingMs: time.Since(start).Milliseconds()}
}

// Live is the bare liveness probe.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
