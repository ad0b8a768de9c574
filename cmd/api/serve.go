// AngelaMos | 2026
// serve.go

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/saas-backend/internal/admin"
	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
	"github.com/carterperez-dev/templates/saas-backend/internal/billing"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/fixture"
	"github.com/carterperez-dev/templates/saas-backend/internal/health"
	"github.com/carterperez-dev/templates/saas-backend/internal/invitation"
	"github.com/carterperez-dev/templates/saas-backend/internal/mail"
	"github.com/carterperez-dev/templates/saas-backend/internal/metrics"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/migrations"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
	"github.com/carterperez-dev/templates/saas-backend/internal/server"
	"github.com/carterperez-dev/templates/saas-backend/internal/user"
)

const (
	drainDelay             = 5 * time.Second
	sessionJanitorInterval = time.Hour
	webhookPath            = "/v1/billing/webhook"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

//nolint:funlen // bootstrap code is inherently verbose
func runServe() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Auth.ExposeMagicLink && !cfg.IsDevelopment() {
		logger.Warn("magic links are returned in API responses",
			"environment", cfg.App.Environment,
		)
	}

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"billing", cfg.BillingEnabled(),
		"e2e", cfg.E2E.Enabled,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	if migrateOnStart {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	m := metrics.New()
	m.RegisterDBPoolCollector(db.Stats)

	mailer := mail.NewLogMailer(cfg.Mail.From, logger)

	userSvc := user.NewService(
		user.NewRepository(db.DB),
		user.NewTxRunner(db.DB),
		m,
	)
	userHandler := user.NewHandler(userSvc)

	orgSvc := organization.NewService(
		organization.NewRepository(db.DB),
		organization.NewTxRunner(db.DB),
	)
	orgHandler := organization.NewHandler(orgSvc)

	authSvc := auth.NewService(auth.Deps{
		Repo:    auth.NewRepository(db.DB),
		JWT:     jwtManager,
		Users:   userSvc,
		Orgs:    orgSvc,
		Tokens:  auth.NewRedisTokenStore(redis.Client),
		Mailer:  mailer,
		Config:  cfg.Auth,
		Metrics: m,
	})

	linkLimiter := newMagicLinkLimiter(redis.Client, cfg, m)
	authHandler := auth.NewHandler(authSvc, linkLimiter.Handler)

	invitationSvc := invitation.NewService(invitation.Deps{
		Repo:    invitation.NewRepository(db.DB),
		Tx:      invitation.NewTxRunner(db.DB),
		Users:   userSvc,
		Orgs:    orgSvc,
		Mailer:  mailer,
		Metrics: m,
	})
	inviteLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.PerHour(cfg.RateLimit.InvitesPerHour, cfg.RateLimit.InvitesPerHour),
		KeyFunc:  middleware.KeyByUserAndEndpoint,
		FailOpen: true,
		OnLimited: func(w http.ResponseWriter, r *http.Request, res *redis_rate.Result) {
			m.IncRateLimitRejection("invitation")
			middleware.WriteRateLimitExceeded(w, res)
		},
	})
	invitationHandler := invitation.NewHandler(invitationSvc, inviteLimiter.Handler)

	var gateway billing.Gateway = billing.DisabledGateway{}
	if cfg.BillingEnabled() {
		gateway = billing.NewStripeGateway(cfg.Stripe.SecretKey)
	} else {
		logger.Warn("stripe secret key not set, billing disabled")
	}
	billingSvc := billing.NewService(billing.Deps{
		Repo:      billing.NewRepository(db.DB),
		Gateway:   gateway,
		Customers: userSvc,
		Orgs:      orgSvc,
		Config:    cfg.Stripe,
		Metrics:   m,
	})
	billingHandler := billing.NewHandler(billingSvc)

	healthHandler := health.NewHandler(cfg.App.Version,
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DB:         db,
		Redis:      redis,
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		Tenants:    admin.NewRepository(db.DB),
		Sessions:   authSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(logger))
	if cfg.Metrics.Enabled {
		router.Use(m.Middleware)
	}
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerWindow(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
				cfg.RateLimit.Window,
			),
			FailOpen:   true,
			BypassFunc: bypassGlobalLimit,
			OnLimited: func(w http.ResponseWriter, r *http.Request, res *redis_rate.Result) {
				m.IncRateLimitRejection("global")
				middleware.WriteRateLimitExceeded(w, res)
			},
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, m.Handler())
	}

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(authSvc)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		orgHandler.RegisterRoutes(r, authenticator)
		invitationHandler.RegisterRoutes(r, authenticator)
		billingHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	if cfg.E2E.Enabled {
		fixture.NewHandler(billingSvc, userSvc).RegisterRoutes(router)
		logger.Warn("e2e fixture endpoints enabled")
	}

	go runSessionJanitor(ctx, authSvc, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()
	healthHandler.SetReady(true)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// Stripe retries webhooks on its own schedule and e2e runners issue bursts
// of cleanup calls; neither should share the per-client budget.
func bypassGlobalLimit(r *http.Request) bool {
	return r.URL.Path == webhookPath || strings.HasPrefix(r.URL.Path, "/api/e2e/")
}

func runSessionJanitor(ctx context.Context, sessions *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpiredSessions(ctx)
			if err != nil {
				logger.Error("purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}
