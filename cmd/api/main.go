// Package main is the entrypoint for the Pagedrop analytics API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pagedrop/pagedrop/internal/analytics"
	"github.com/pagedrop/pagedrop/internal/cache"
	"github.com/pagedrop/pagedrop/internal/config"
	"github.com/pagedrop/pagedrop/internal/handler"
	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/middleware"
	"github.com/pagedrop/pagedrop/internal/repository"
	"github.com/pagedrop/pagedrop/internal/server"
	"github.com/pagedrop/pagedrop/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.NewWithPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.NewWithPool(ctx, cfg.RedisURL, cache.PoolConfig{
		Size:         cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
	})
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()
	recordRepo := repository.NewAnalyticsRecordRepository(repo)

	// Services
	siteService := service.NewSiteService(repo, cacheClient, logger, recorder, service.SiteServiceOptions{
		CacheTTL:      cfg.SiteCacheTTL,
		SessionWindow: cfg.SessionWindow,
	})
	publisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	hitSink := service.NewHitSink(publisher, siteService)
	statsService := service.NewStatsService(repo, recordRepo, cacheClient, logger)
	flusher := service.NewCounterFlusher(cacheClient, repo, logger, recorder, cfg.CounterFlushInterval)

	// Handlers
	builder := analytics.NewRecordBuilder(analytics.NewIPHasher(cfg.IPHashSalt), cfg.SessionWindow)
	handlers := routeHandlers{
		root:    handler.New(),
		health:  handler.NewHealthHandler(repo, cacheClient),
		metrics: handler.NewMetricsHandler(recorder),
		hit:     handler.NewHitHandler(siteService, hitSink, builder, logger, recorder),
		stats:   handler.NewStatsHandler(statsService, logger),
	}

	r := setupRouter(handlers, cacheClient, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Shutdown runs LIFO: the flusher registered last stops first, then the
	// worker. Entries it had not acked are reclaimed after restart.
	if cfg.AnalyticsWorkerEnabled {
		worker := analytics.NewWorker(cacheClient.Client(), recordRepo, logger, analytics.NewConsumerID(), recorder, analytics.WorkerConfig{
			BatchSize:    cfg.WorkerBatchSize,
			BlockTimeout: cfg.WorkerBlockTimeout,
			MaxRetries:   cfg.WorkerMaxRetries,
			ClaimIdle:    cfg.WorkerClaimIdle,
		})
		srv.Go("analytics-worker", worker.Run)
		srv.OnShutdown("analytics-worker", worker.Shutdown)
	} else {
		logger.Info("analytics worker disabled")
	}
	srv.Go("counter-flusher", flusher.Run)
	srv.OnShutdown("counter-flusher", flusher.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routeHandlers struct {
	root    *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	hit     *handler.HitHandler
	stats   *handler.StatsHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(h routeHandlers, limiter middleware.HitLimiter, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger, "/hit/", "/api/v1/analytics/hit/"))
	r.Use(middleware.Recoverer(logger))
	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)
	r.Get("/", h.root.Info)

	rateLimit := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitHitEnabled,
		RPS:     cfg.RateLimitHitRPS,
		Burst:   cfg.RateLimitHitBurst,
	})

	// The hit handler dispatches on method itself so every verb gets the
	// beacon contract (OPTIONS preflight, 405 with Allow).
	hit := http.HandlerFunc(h.hit.Hit)
	for _, pattern := range []string{
		"/api/v1/analytics/hit/{siteId}",
		"/api/v1/analytics/hit/",
		"/hit/{siteId}",
		"/hit/",
	} {
		r.With(rateLimit).Handle(pattern, hit)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r.Route("/api/v1/sites", func(r chi.Router) {
		r.Use(middleware.CORS(corsCfg))
		r.Use(chimiddleware.Compress(5, "application/json"))
		r.Get("/{siteId}/stats", h.stats.GetSiteStats)
	})

	r.NotFound(h.root.NotFound)
	r.MethodNotAllowed(h.root.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
