// AngelaMos | 2026
// limits.go

package main

import (
	"net/http"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/saas-backend/internal/config"
	"github.com/carterperez-dev/templates/saas-backend/internal/metrics"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
)

// newMagicLinkLimiter caps link requests per client IP. E2E deployments
// sign every scenario user in from one runner, so the cap is lifted there;
// config validation keeps e2e out of production.
func newMagicLinkLimiter(
	rdb *redis.Client,
	cfg *config.Config,
	m *metrics.Metrics,
) *middleware.RateLimiter {
	perHour := cfg.Auth.MagicLinkPerHour

	return middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
		Limit:    middleware.PerHour(perHour, perHour),
		FailOpen: true,
		BypassFunc: func(*http.Request) bool {
			return cfg.E2E.Enabled
		},
		OnLimited: func(w http.ResponseWriter, r *http.Request, res *redis_rate.Result) {
			m.IncRateLimitRejection("magic_link")
			middleware.WriteRateLimitExceeded(w, res)
		},
	})
}
