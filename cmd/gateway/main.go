package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgrid/internal/api"
	"github.com/leadgrid/leadgrid/internal/cadence"
	"github.com/leadgrid/leadgrid/internal/circuitbreaker"
	"github.com/leadgrid/leadgrid/internal/config"
	"github.com/leadgrid/leadgrid/internal/db"
	"github.com/leadgrid/leadgrid/internal/metrics"
	"github.com/leadgrid/leadgrid/internal/observ"
	"github.com/leadgrid/leadgrid/internal/redis"
	"github.com/leadgrid/leadgrid/internal/sns"
	"github.com/leadgrid/leadgrid/internal/sqs"
	"github.com/leadgrid/leadgrid/internal/transport"
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

	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return fmt.Errorf("invalid CADENCE_USER_ID: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting leadgrid gateway",
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

	repo := db.NewRepository(database, logger)

	// Redis backs the per-channel run lock and the endpoint rate
	// limiter. Without it we fall back to an in-process mutex, which is
	// only safe for single-instance deployments.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-process run lock",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var locker cadence.Locker
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		runLock := redis.NewRunLock(redisClient, logger, time.Duration(cfg.LockTTLSec)*time.Second)
		locker = &redisLocker{lock: runLock}
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  60,
			Window: 1 * time.Minute,
		})
	} else {
		locker = newMutexLocker()
	}

	// Email transport: SES behind a circuit breaker.
	sesSender, err := transport.NewSESSender(ctx, transport.SESConfig{
		Region:    cfg.AWSRegion,
		FromEmail: cfg.SESFromEmail,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create SES email sender: %w", err)
	}

	emailSender := circuitbreaker.NewProtectedSender(
		sesSender,
		circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger),
		logger,
	)

	// WhatsApp transport: Cloud API behind a circuit breaker, or the
	// log sender in development when no token is configured.
	var whatsappBase transport.Sender
	if cfg.WhatsAppAccessToken != "" {
		whatsappBase = transport.NewWhatsAppSender(logger, transport.WhatsAppConfig{
			APIURL:      cfg.WhatsAppAPIURL,
			AccessToken: cfg.WhatsAppAccessToken,
			FromNumber:  cfg.WhatsAppFromNumber,
			Timeout:     time.Duration(cfg.WhatsAppTimeoutSec) * time.Second,
		})
	} else {
		logger.Warn("WHATSAPP_ACCESS_TOKEN not set, whatsapp sends are logged only")
		whatsappBase = transport.NewLogSender(logger)
	}

	whatsappSender := circuitbreaker.NewProtectedSender(
		whatsappBase,
		circuitbreaker.New(circuitbreaker.DefaultConfig("whatsapp"), logger),
		logger,
	)

	// Optional SNS fan-out of sent events.
	var events cadence.EventPublisher
	if cfg.SNSEventsTopicARN != "" {
		publisher, err := sns.NewPublisher(ctx, cfg.AWSRegion, cfg.SNSEventsTopicARN, logger)
		if err != nil {
			logger.Warn("sns publisher unavailable, sent events will not be published",
				zap.Error(err),
			)
		} else {
			events = publisher
		}
	}

	emailEngine := cadence.NewEngine(repo, cadence.EmailAdapter{}, emailSender, locker, events, logger)
	whatsappEngine := cadence.NewEngine(repo, cadence.WhatsAppAdapter{}, whatsappSender, locker, events, logger)

	runners := map[string]api.CadenceRunner{
		db.ChannelEmail:    emailEngine,
		db.ChannelWhatsApp: whatsappEngine,
	}

	// Optional SQS tick consumer fed by an EventBridge schedule; both
	// it and the HTTP trigger drive the same engines.
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	if cfg.SQSTickQueueURL != "" {
		runner := func(ctx context.Context, channel string) error {
			engine, ok := runners[channel]
			if !ok {
				return fmt.Errorf("unknown channel in tick: %s", channel)
			}
			_, err := engine.Run(ctx, userID)
			return err
		}

		consumer, err := sqs.NewTickConsumer(consumerCtx, sqs.Config{
			Region:     cfg.SQSRegion,
			QueueURL:   cfg.SQSTickQueueURL,
			RunTimeout: time.Duration(cfg.RunTimeoutSec) * time.Second,
		}, runner, logger)
		if err != nil {
			logger.Warn("sqs tick consumer unavailable, relying on HTTP trigger only",
				zap.Error(err),
			)
		} else {
			go consumer.Start(consumerCtx)
			logger.Info("sqs tick consumer started")
		}
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
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

	handler := api.NewHandler(logger, repo, runners, userID, time.Duration(cfg.RunTimeoutSec)*time.Second)

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Route("/cadence", func(r chi.Router) {
			// Shared secret checked before any state is read.
			r.Use(api.TriggerSecretMiddleware(cfg.TriggerSecret, logger))
			r.Post("/{channel}/run", handler.TriggerCadence)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/delivery", handler.HandleDeliveryEvent)
			r.Post("/enrichment", handler.HandleEnrichment)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.RunTimeoutSec+15) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		consumerCancel()

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

// redisLocker adapts redis.RunLock to the cadence.Locker contract.
type redisLocker struct {
	lock *redis.RunLock
}

func (l *redisLocker) Acquire(ctx context.Context, userID uuid.UUID, channel string) (func(), bool, error) {
	release, err := l.lock.Acquire(ctx, userID.String(), channel, uuid.NewString())
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return release, true, nil
}

// mutexLocker serializes runs per channel inside this process. Only
// safe when a single gateway instance is deployed.
type mutexLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{held: make(map[string]bool)}
}

func (l *mutexLocker) Acquire(ctx context.Context, userID uuid.UUID, channel string) (func(), bool, error) {
	key := userID.String() + ":" + channel

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}

	return release, true, nil
}
