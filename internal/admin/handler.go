// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

// SessionPurger drops refresh tokens that can no longer be used.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerConfig struct {
	DB         Pinger
	Redis      Pinger
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	Tenants    TenantCounter
	Sessions   SessionPurger
}

type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/tenants", h.GetTenantStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
		r.Post("/sessions/purge", h.PurgeSessions)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	core.OK(w, SystemStatsResponse{
		Database: checkDependency(ctx, h.cfg.DB, dbPoolStats(h.cfg.DBStats)),
		Redis:    checkDependency(ctx, h.cfg.Redis, redisPoolStats(h.cfg.RedisStats)),
		Runtime:  readRuntimeStats(),
	})
}

func (h *Handler) GetTenantStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tenants == nil {
		core.ServiceUnavailable(w, "tenant store not configured")
		return
	}

	stats, err := h.cfg.Tenants.TenantStats(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, stats)
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, readRuntimeStats())
}

func (h *Handler) PurgeSessions(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sessions == nil {
		core.ServiceUnavailable(w, "session store not configured")
		return
	}

	n, err := h.cfg.Sessions.PurgeExpiredSessions(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, PurgeSessionsResponse{Deleted: n})
}

// checkDependency reports an unwired dependency as healthy; the health
// endpoints are where missing wiring fails loudly.
func checkDependency[T any](ctx context.Context, p Pinger, stats *T) DependencyStatus[T] {
	status := DependencyStatus[T]{Healthy: true, Stats: stats}
	if p == nil {
		return status
	}
	if err := p.Ping(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}

func redisPoolStats(stats func() *redis.PoolStats) *RedisPoolStats {
	if stats == nil {
		return nil
	}

	s := stats()
	return &RedisPoolStats{
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		StaleConns: s.StaleConns,
	}
}

func dbPoolStats(stats func() sql.DBStats) *DBPoolStats {
	if stats == nil {
		return nil
	}

	s := stats()
	return &DBPoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration.String(),
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}

func readRuntimeStats() RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     mem.Alloc,
		MemSys:       mem.Sys,
		NumGC:        mem.NumGC,
	}
}
