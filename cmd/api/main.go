package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-assistant/internal/api/router"
	"github.com/wolfman30/booking-assistant/internal/booking"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/dates"
	"github.com/wolfman30/booking-assistant/internal/extraction"
	"github.com/wolfman30/booking-assistant/internal/llm"
	"github.com/wolfman30/booking-assistant/internal/messaging"
	"github.com/wolfman30/booking-assistant/internal/notify"
	"github.com/wolfman30/booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/booking-assistant/internal/store"
	"github.com/wolfman30/booking-assistant/internal/worker"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const (
	stateTTL          = 24 * time.Hour
	detectorWindow    = 3
	dashboardBuffer   = 32
	shutdownTimeout   = 30 * time.Second
	assistantMaxToken = 500
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, bookingMetrics := setupMetrics()
	health := router.NewHealthHandler()

	stores, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()
	if stores.ping != nil {
		health.Register("postgres", stores.ping)
	}
	repo := stores.repo

	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
		health.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	registry := notify.NewRegistry(dashboardBuffer, logger)
	publishers := notify.Multi{registry}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		relay, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSToken, logger)
		if err != nil {
			return err
		}
		defer relay.Close()
		publishers = append(publishers, relay)
	}

	engineOpts := []booking.Option{
		booking.WithPublisher(publishers),
		booking.WithConflictPolicy(booking.ParseConflictPolicy(cfg.ConflictPolicy)),
		booking.WithIdempotencyWindow(cfg.IdempotencyWindow),
		booking.WithLogger(logger),
	}
	if redisClient != nil {
		engineOpts = append(engineOpts, booking.WithClaimer(booking.NewRedisClaimer(redisClient)))
	}
	engine := booking.NewEngine(repo, engineOpts...)

	resolver := dates.NewResolver(cfg.Location())
	llmClient, model, err := setupLLM(ctx, cfg, logger, bookingMetrics)
	if err != nil {
		return err
	}
	var modelStrategy extraction.Strategy
	var processorOpts []worker.ProcessorOption
	if llmClient != nil {
		modelStrategy = extraction.NewModelExtractor(llmClient, model, resolver,
			extraction.WithTimeout(cfg.LLMTimeout),
			extraction.WithMaxTokens(cfg.LLMMaxTokens),
			extraction.WithTemperature(cfg.LLMTemperature),
			extraction.WithLogger(logger),
		)
		processorOpts = append(processorOpts, worker.WithResponder(
			worker.NewResponder(llmClient, model, resolver, cfg.LLMTimeout, assistantMaxToken, cfg.LLMTemperature),
		))
	}
	extractor := extraction.NewExtractor(extraction.NewSummaryExtractor(resolver, logger), modelStrategy, logger)

	sender, err := messaging.NewEvolutionClient(messaging.EvolutionConfig{
		BaseURL: cfg.EvolutionBaseURL,
		APIKey:  cfg.EvolutionAPIKey,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("evolution client: %w", err)
	}

	debouncer := worker.NewDebouncer(cfg.DebounceDelay, logger)
	processorOpts = append(processorOpts,
		worker.WithDebouncer(debouncer),
		worker.WithMetrics(bookingMetrics),
		worker.WithLogger(logger),
	)
	if redisClient != nil {
		processorOpts = append(processorOpts, worker.WithStateStore(conversation.NewRedisStateStore(redisClient, stateTTL)))
	}
	processor := worker.NewProcessor(repo, conversation.NewDetector(detectorWindow), extractor, engine, sender, resolver, processorOpts...)

	webhook := messaging.NewWebhookHandler(cfg.WebhookSecret, repo, stores.threads, repo, processor, bookingMetrics, logger)
	r := router.New(&router.Config{
		Logger:             logger,
		Webhook:            webhook,
		Dashboard:          notify.NewWebSocketHandler(registry, logger),
		DashboardToken:     cfg.DashboardToken,
		MetricsHandler:     metricsHandler,
		Health:             health,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Pending conversations are processed now rather than dropped.
	if err := debouncer.Shutdown(shutdownCtx); err != nil {
		logger.Error("pending conversations not flushed", "error", err)
	}
	return nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

type threadStore interface {
	ResolveThread(ctx context.Context, tenantID, contactPhone string, now time.Time) (conversation.Thread, error)
}

type storeBundle struct {
	repo    store.Repository
	threads threadStore
	ping    router.CheckFunc
	close   func()
}

// setupStore returns the repository and thread store. Memory stores are used
// when USE_MEMORY_STORE is set or no database is configured.
func setupStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (storeBundle, error) {
	if cfg.UseMemoryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("using in-memory stores; data is lost on restart")
		mem := store.NewMemory()
		seedDemoTenant(mem)
		return storeBundle{repo: mem, threads: conversation.NewMemoryThreadStore(), close: func() {}}, nil
	}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		return storeBundle{}, errors.New("postgres: unable to connect")
	}
	db := stdlib.OpenDBFromPool(pool)
	return storeBundle{
		repo:    store.NewPostgres(pool),
		threads: conversation.NewSQLStore(db),
		ping:    pool.Ping,
		close: func() {
			_ = db.Close()
			pool.Close()
		},
	}, nil
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func setupRedis(cfg *appconfig.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// setupLLM builds the completion client named by LLM_PROVIDER. Bedrock falls
// back to Gemini when a Gemini key is configured. "none" disables the model
// strategy and the assistant replies.
func setupLLM(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, observer llm.LatencyObserver) (llm.Client, string, error) {
	var (
		client llm.Client
		model  string
	)
	switch cfg.LLMProvider {
	case "none", "":
		logger.Warn("llm disabled; only rendered summaries can be booked")
		return nil, "", nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, "", errors.New("llm: GEMINI_API_KEY is required for the gemini provider")
		}
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		client, model = gemini, cfg.GeminiModelID
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, "", errors.New("llm: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		bedrock, err := llm.NewBedrockClientFromSettings(ctx, llm.AWSSettings{
			Region:           cfg.AWSRegion,
			AccessKeyID:      cfg.AWSAccessKeyID,
			SecretAccessKey:  cfg.AWSSecretAccessKey,
			EndpointOverride: cfg.AWSEndpointOverride,
		})
		if err != nil {
			return nil, "", err
		}
		client, model = bedrock, cfg.BedrockModelID
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini fallback unavailable", "error", err)
			} else {
				client = llm.NewFallbackClient(bedrock, gemini, logger)
			}
		}
	default:
		return nil, "", fmt.Errorf("llm: unknown provider %q", cfg.LLMProvider)
	}
	logger.Info("llm configured", "provider", cfg.LLMProvider, "model", model)
	return llm.NewInstrumentedClient(client, observer), model, nil
}
