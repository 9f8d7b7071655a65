package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pptmaker/pptmaker-api/internal/config"
	"github.com/pptmaker/pptmaker-api/internal/domain/admin"
	"github.com/pptmaker/pptmaker-api/internal/domain/auth"
	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/payment"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/presentation"
	"github.com/pptmaker/pptmaker-api/internal/domain/realtime"
	"github.com/pptmaker/pptmaker-api/internal/domain/subscription"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/database"
	"github.com/pptmaker/pptmaker-api/internal/pkg/generator"
	"github.com/pptmaker/pptmaker-api/internal/pkg/imaging"
	"github.com/pptmaker/pptmaker-api/internal/pkg/jwt"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, Service: "api"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting PPT Maker API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.RunMigrations {
		if err := database.Migrate(db.DB, "up"); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	store, err := newStorage(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init storage")
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Realtime ----------
	hub := realtime.NewHub(redis)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	permissionRepo := permission.NewRepository(db)
	subscriptionRepo := subscription.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	presentationRepo := presentation.NewRepository(db)
	auditRepo := admin.NewAuditRepository(db)

	// ---------- Services ----------
	creditService := credit.NewService(db)
	creditService.SetNotifier(hub)
	permissionService := permission.NewService(permissionRepo)

	authService := auth.NewService(userRepo, creditService, jwtService, auth.NewRedisTokenStore(redis), auth.SignupBonus{
		Credits: cfg.SignupBonusCredits,
		TTL:     cfg.SignupBonusTTL,
	})

	subscriptionService := subscription.NewService(subscriptionRepo, creditService)
	paymentService := payment.NewService(paymentRepo, creditService, subscriptionService, payment.Config{
		WebhookSecret: cfg.PaymentWebhookSecret,
		CheckoutURL:   cfg.PaymentCheckoutURL,
	})
	subscriptionService.SetPayments(paymentService)

	presentationService := presentation.NewService(presentation.Deps{
		Repo:            presentationRepo,
		Permissions:     permissionService,
		Credits:         creditService,
		Generator:       generator.NewClient(cfg.GeneratorBaseURL, cfg.GeneratorAPIKey, cfg.GeneratorModel, cfg.GeneratorTimeout),
		Storage:         store,
		Thumbnailer:     imaging.NewProcessor(imaging.DefaultConfig()),
		Users:           userRepo,
		CreditsPerSlide: cfg.CreditsPerSlide,
	})

	adminService := admin.NewService(userRepo, creditService, permissionService, paymentService, subscriptionService, auditRepo)

	// ---------- Router ----------
	router := newRouter(routerDeps{
		cfg:            cfg,
		authMiddleware: chainAuth(middleware.Auth(jwtService), middleware.RequireActiveAccount(userRepo)),
		limiter:        middleware.NewRateLimiter(redis),
		adminChecker:   permissionService,
		auth:           auth.NewHandler(authService),
		credits:        credit.NewHandler(creditService),
		subscriptions:  subscription.NewHandler(subscriptionService),
		payments:       payment.NewHandler(paymentService),
		presentations:  presentation.NewHandler(presentationService),
		admin:          admin.NewHandler(adminService),
		realtime:       realtime.NewHandler(hub, cfg.AllowedOrigins),
		ready:          readiness(db, redis),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeneratorTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.UseS3() {
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Using S3 storage")
		return storage.NewS3Storage(ctx, storage.Config{
			S3Endpoint:  cfg.S3Endpoint,
			S3Region:    cfg.S3Region,
			S3Bucket:    cfg.S3Bucket,
			S3AccessKey: cfg.S3AccessKey,
			S3SecretKey: cfg.S3SecretKey,
			S3PublicURL: cfg.S3PublicURL,
		})
	}
	log.Warn().Str("dir", cfg.LocalDir).Msg("S3 not configured, using local storage")
	return storage.NewLocalStorage(cfg.LocalDir, "/files")
}

func chainAuth(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
