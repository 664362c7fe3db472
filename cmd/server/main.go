package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goodbreeze/breeze/internal"
	"github.com/goodbreeze/breeze/internal/ai"
	"github.com/goodbreeze/breeze/internal/ai/anthropic"
	"github.com/goodbreeze/breeze/internal/ai/mock"
	"github.com/goodbreeze/breeze/internal/billing"
	"github.com/goodbreeze/breeze/internal/cache"
	"github.com/goodbreeze/breeze/internal/captcha"
	"github.com/goodbreeze/breeze/internal/email"
	"github.com/goodbreeze/breeze/internal/handler"
	"github.com/goodbreeze/breeze/internal/jobs"
	"github.com/goodbreeze/breeze/internal/metrics"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/repository"
	"github.com/goodbreeze/breeze/internal/service"
	"github.com/goodbreeze/breeze/internal/storage"
	"github.com/goodbreeze/breeze/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Usage summary cache (optional Redis; falls back to the database)
	var summaryCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		summaryCache = redisCache
		logger.Info("Redis cache connected")
	} else {
		summaryCache = cache.NewNoop()
	}

	// CAPTCHA verifier for escalated login challenges
	var verifier captcha.Verifier
	if cfg.CaptchaProvider == "turnstile" {
		verifier = captcha.NewTurnstile(cfg.TurnstileSecret, cfg.TurnstileTimeout)
		logger.Info("Turnstile CAPTCHA enabled")
	} else {
		verifier = captcha.NewNoop()
	}

	// Transactional email
	var emailService email.Service
	if cfg.SMTPHost != "" {
		emailService, err = email.NewSMTPEmailService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)
		if err != nil {
			return fmt.Errorf("email service initialization failed: %w", err)
		}
	} else {
		emailService = email.NewNoop(logger)
	}

	// Report PDF storage
	var objects storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		objects, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
			Region:          "auto",
		}, logger)
	default:
		objects, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// AI provider for report generation
	var provider ai.Provider
	if cfg.AIProvider == "anthropic" {
		provider, err = anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("AI provider initialization failed: %w", err)
		}
	} else {
		provider = mock.New(logger)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	// Stripe billing (optional; checkout endpoints return errors without it)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			StarterPriceID: cfg.StripeStarterPriceID,
			GrowthPriceID:  cfg.StripeGrowthPriceID,
			ProPriceID:     cfg.StripeProPriceID,
			PackPriceID:    cfg.StripePackPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY not set")
	}

	// Initialize services
	userService := service.NewUserService(repo, verifier, emailService, logger)
	entitlementService := service.NewEntitlementService(repo, logger)
	reportService := service.NewReportService(repo, entitlementService, logger)
	creditService := service.NewCreditService(repo, summaryCache, logger)
	notificationService := service.NewNotificationService(repo, logger)

	// Background job worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		w, err := worker.New(repo, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewGenerateReportHandler(repo, reportService, provider, objects, emailService, logger))
		w.Start(ctx)
		defer w.Stop()
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger, isSecure)
	logging := middleware.NewRequestLoggingMiddleware(logger)
	limits := middleware.NewAPIRateLimiter(logger)

	withUser := middleware.Stack(authMw.WithUser)
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, limits, logger, isSecure)
	reportHandler := handler.NewReportHandler(reportService, objects, limits, logger)
	usageHandler := handler.NewUsageHandler(creditService, notificationService, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, userService, creditService, repo, logger)
	healthHandler := handler.NewHealthHandler(db, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	healthHandler.RegisterRoutes(mux)
	authHandler.RegisterRoutes(mux, requireUser)
	reportHandler.RegisterRoutes(mux, withUser, requireUser)
	usageHandler.RegisterRoutes(mux, requireUser)
	billingHandler.RegisterRoutes(mux, requireUser)
	webhookHandler.RegisterRoutes(mux)

	// Status callbacks from out-of-process workers
	if cfg.WorkerCallbackToken != "" {
		internalHandler := handler.NewInternalHandler(reportService, cfg.WorkerCallbackToken, logger)
		internalHandler.RegisterRoutes(mux)
	}

	// Locally stored report PDFs (development)
	if cfg.StorageProvider == "local" {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Prometheus metrics, behind basic auth when credentials are configured
	metricsHandler := http.Handler(promhttp.Handler())
	if cfg.MetricsUsername != "" && cfg.MetricsPassword != "" {
		metricsHandler = basicAuth(cfg.MetricsUsername, cfg.MetricsPassword, metricsHandler)
	}
	mux.Handle("GET /metrics", metricsHandler)

	// ==========================================================================
	// Background maintenance
	// ==========================================================================

	maintCtx, cancelMaint := context.WithCancel(ctx)
	defer cancelMaint()
	go sweepStaleReports(maintCtx, reportService, logger)
	go cleanExpiredSessions(maintCtx, userService, logger)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: metrics.Middleware(logging.Handler(mux)),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// sweepStaleReports fails reports stuck in pending or processing and refunds
// their charges. Runs hourly.
func sweepStaleReports(ctx context.Context, reports service.ReportService, logger *slog.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := reports.SweepStale(ctx)
			if err != nil {
				logger.Error("stale report sweep failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Warn("swept stale reports", "count", count)
			}
		}
	}
}

// cleanExpiredSessions removes expired session rows once a day.
func cleanExpiredSessions(ctx context.Context, users service.UserService, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := users.DeleteExpiredSessions(ctx); err != nil {
				logger.Error("session cleanup failed", "error", err)
			}
		}
	}
}

func basicAuth(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
