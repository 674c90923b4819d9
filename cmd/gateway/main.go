package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/plumehq/syndicate/internal/alerts"
	"github.com/plumehq/syndicate/internal/api"
	"github.com/plumehq/syndicate/internal/circuitbreaker"
	"github.com/plumehq/syndicate/internal/config"
	"github.com/plumehq/syndicate/internal/db"
	"github.com/plumehq/syndicate/internal/metrics"
	"github.com/plumehq/syndicate/internal/oauth"
	"github.com/plumehq/syndicate/internal/observ"
	"github.com/plumehq/syndicate/internal/platform"
	"github.com/plumehq/syndicate/internal/redis"
	"github.com/plumehq/syndicate/internal/scheduler"
	"github.com/plumehq/syndicate/internal/sqs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting syndicate gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Redis backs OAuth state, idempotency, and rate limiting. The state
	// store has no fallback, so a broken Redis is fatal here.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	stateStore := redis.NewStateStore(redisClient, logger)
	idempotencyService := redis.NewIdempotencyService(redisClient, logger)
	rateLimiter := redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
		Limit:  100,             // 100 requests
		Window: 1 * time.Minute, // per minute per user
	})

	// Platform adapters for every configured credential pair
	creds := make(map[string]platform.Credentials, len(cfg.Platforms))
	for name, c := range cfg.Platforms {
		creds[name] = platform.Credentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret}
	}
	registry := platform.BuildRegistry(creds, cfg.RedirectBase, logger)

	// Alert channels: log always, the rest only when configured.
	notifiers := []alerts.Notifier{alerts.NewLogNotifier(logger)}
	if cfg.AlertToEmail != "" {
		emailNotifier, err := alerts.NewEmailNotifier(ctx, alerts.EmailConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.AlertFromEmail,
			ToEmail:   cfg.AlertToEmail,
		}, logger)
		if err != nil {
			logger.Warn("email alerts unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, emailNotifier)
		}
	}
	if cfg.AlertTopicARN != "" {
		topicNotifier, err := alerts.NewTopicNotifier(ctx, alerts.TopicConfig{
			Region:   cfg.AWSRegion,
			TopicARN: cfg.AlertTopicARN,
		}, logger)
		if err != nil {
			logger.Warn("topic alerts unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, topicNotifier)
		}
	}
	if cfg.AlertWebhook != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(alerts.WebhookConfig{
			URL:     cfg.AlertWebhook,
			Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
		}, logger))
	}
	notifier := alerts.NewMultiNotifier(logger, notifiers...)

	// OAuth connector
	connector := oauth.New(repo, stateStore, registry, notifier, oauth.Config{
		StateTTL:      cfg.StateTTL,
		RefreshMargin: cfg.RefreshMargin,
	}, logger)

	// Publish pipeline
	breakers := circuitbreaker.NewBreakers(logger)
	dispatcher := scheduler.NewDispatcher(repo, connector, registry, breakers, notifier, scheduler.DispatchConfig{
		MaxAttempts: cfg.MaxAttempts,
		RetryBase:   cfg.RetryBase,
	}, logger)

	// Optional SQS dispatch queue. The poller alone is sufficient; the
	// queue only shortens pickup latency for immediate posts.
	var producer scheduler.Producer
	var consumer scheduler.Consumer
	if cfg.SQSQueueURL != "" {
		sqsCfg := sqs.Config{Region: cfg.SQSRegion, QueueURL: cfg.SQSQueueURL}

		sqsProducer, err := sqs.NewProducer(ctx, sqsCfg, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, dispatch falls back to polling", zap.Error(err))
		} else {
			producer = sqsProducer
			defer sqsProducer.Close()
		}

		sqsConsumer, err := sqs.NewConsumer(ctx, sqsCfg, logger)
		if err != nil {
			logger.Warn("sqs consumer unavailable, dispatch falls back to polling", zap.Error(err))
		} else {
			consumer = sqsConsumer
			defer sqsConsumer.Close()
		}
	}

	schedService := scheduler.NewService(repo, registry, dispatcher, producer, logger)

	worker := scheduler.NewWorker(repo, dispatcher, consumer, scheduler.WorkerConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go worker.Start(workerCtx)

	logger.Info("scheduler worker started",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("queue_enabled", consumer != nil),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, connector, schedService, repo, idempotencyService)

	r.Route("/v1", func(r chi.Router) {
		// Apply rate limiting to API routes
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		r.Get("/connect/{platform}", handler.InitiateConnect)
		r.Get("/connect/{platform}/callback", handler.HandleCallback)

		r.Get("/accounts", handler.ListAccounts)
		r.Post("/accounts/{id}/refresh", handler.RefreshAccount)
		r.Delete("/accounts/{id}", handler.DisconnectAccount)

		r.Post("/posts", handler.CreatePost)
		r.Get("/posts", handler.ListPosts)
		r.Get("/posts/{id}", handler.GetPost)
		r.Post("/posts/{id}/schedule", handler.SchedulePost)
		r.Delete("/posts/{id}", handler.CancelPost)
	})

	// Health check with circuit breaker visibility
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"breakers": breakers.Stats(),
		})
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
