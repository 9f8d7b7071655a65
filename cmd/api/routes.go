package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/pptmaker/pptmaker-api/internal/config"
	"github.com/pptmaker/pptmaker-api/internal/domain/admin"
	"github.com/pptmaker/pptmaker-api/internal/domain/auth"
	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/presentation"
	"github.com/pptmaker/pptmaker-api/internal/domain/realtime"
	"github.com/pptmaker/pptmaker-api/internal/domain/subscription"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/metrics"
	pkgresponse "github.com/pptmaker/pptmaker-api/internal/pkg/response"
)

type routerDeps struct {
	cfg            *config.Config
	authMiddleware func(http.Handler) http.Handler
	limiter        *middleware.RateLimiter
	adminChecker   permission.AdminChecker

	auth          *auth.Handler
	credits       *credit.Handler
	subscriptions *subscription.Handler
	payments      *payment.Handler
	presentations *presentation.Handler
	admin         *admin.Handler
	realtime      *realtime.Handler

	ready func(ctx context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(d.cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.With(d.authMiddleware).Get("/ws", d.realtime.WebSocket)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if d.ready != nil {
			if err := d.ready(r.Context()); err != nil {
				logger.FromContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
				pkgresponse.Error(w, http.StatusServiceUnavailable, "NOT_READY", "Dependencies unavailable")
				return
			}
		}
		pkgresponse.OK(w, map[string]string{"status": "ready"})
	})

	if d.cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	if !d.cfg.UseS3() {
		r.Handle("/files/*", http.StripPrefix("/files", http.FileServer(http.Dir(d.cfg.LocalDir))))
	}

	r.Mount("/webhooks", d.payments.WebhookRoutes())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				pkgresponse.OK(w, map[string]string{"message": "pong"})
			})

			r.Mount("/auth", d.auth.Routes(d.authMiddleware, d.limiter.PerMinute("auth", d.cfg.AuthRateLimit)))
			r.Mount("/credits", d.credits.Routes(d.authMiddleware))
			r.Mount("/subscriptions", d.subscriptions.Routes(d.authMiddleware))
			r.Mount("/payments", d.payments.Routes(d.authMiddleware))
			r.Mount("/presentations", d.presentations.Routes(d.authMiddleware, d.limiter.PerMinute("generate", d.cfg.GenerateRateLimit)))
		})

		r.Mount("/api/admin", d.admin.Routes(d.authMiddleware, d.adminChecker))
	})

	return r
}

func readiness(db *sqlx.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}
}
