package db

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// Health aggregates dependency checks for the /health endpoint.
type Health struct {
	mu      sync.RWMutex
	pool    *pgxpool.Pool
	checks  map[string]Check
	timeout time.Duration
}

func NewHealth() *Health {
	return &Health{checks: make(map[string]Check), timeout: 5 * time.Second}
}

// AddCheck registers a named check.
func (h *Health) AddCheck(name string, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// AddPool registers the Postgres pool as the "database" check and reports its
// statistics.
func (h *Health) AddPool(pool *pgxpool.Pool) {
	h.mu.Lock()
	h.pool = pool
	h.mu.Unlock()
	h.AddCheck("database", pool.Ping)
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Pool   *PoolStats        `json:"pool,omitempty"`
}

// Run executes every check and reports whether all passed.
func (h *Health) Run(ctx context.Context) (HealthResponse, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := h.checks
	pool := h.pool
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(names))}
	healthy := true
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			healthy = false
			continue
		}
		resp.Checks[name] = "ok"
	}
	if pool != nil {
		resp.Pool = GetPoolStats(pool)
		resp.Pool.Healthy = resp.Pool.Healthy && resp.Checks["database"] == "ok"
	}
	if !healthy {
		resp.Status = "unhealthy"
	}
	return resp, healthy
}

// Handler serves the aggregated health as JSON, 503 when any check fails.
func (h *Health) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		resp, ok := h.Run(c.Request().Context())
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
