package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"notulis.app/bot/common/id"
	"notulis.app/bot/common/llm"
	"notulis.app/bot/common/logger"
	"notulis.app/bot/common/otel"
	"notulis.app/bot/core/config"
	"notulis.app/bot/core/db"
	"notulis.app/bot/internal/brain"
	"notulis.app/bot/internal/command"
	"notulis.app/bot/internal/gateway"
	"notulis.app/bot/internal/http/middleware"
	"notulis.app/bot/internal/meeting"
	"notulis.app/bot/internal/metrics"
	"notulis.app/bot/internal/queue"
	"notulis.app/bot/internal/registry"
	"notulis.app/bot/internal/store"
	"notulis.app/bot/internal/transcript"
	"notulis.app/bot/internal/worker"
)

// contact names fetched from the gateway are reused for this long
const contactCacheTTL = 30 * time.Minute

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "notulis worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer,
		"llm_provider", cfg.LLM.Provider,
		"meeting_store", cfg.Chat.MeetingStore)

	// Different node ID than the server so archive ids never collide
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	location, err := time.LoadLocation(cfg.Chat.ArchiveTimezone)
	if err != nil {
		slog.ErrorContext(ctx, "invalid archive timezone", "timezone", cfg.Chat.ArchiveTimezone, "error", err)
		os.Exit(1)
	}

	prompts, err := brain.LoadPrompts(cfg.Chat.PromptsFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load prompts", "path", cfg.Chat.PromptsFile, "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	stores := store.NewStores(database.Conn())

	users := registry.New(stores.Users())
	if err := users.Load(ctx); err != nil {
		// Not fatal: names fall back to gateway contacts until the next !register.
		slog.WarnContext(ctx, "failed to load user registry", "error", err)
	}

	var markers store.MarkerStore
	switch cfg.Chat.MeetingStore {
	case config.MeetingStoreRedis:
		markers = store.NewRedisMarkerStore(redisClient, store.RedisMarkerConfig{
			MarkerTTL: cfg.Chat.MarkerTTL,
			LockTTL:   cfg.Chat.LockTTL,
		})
	default:
		markers = store.NewMemoryMarkerStore()
	}

	gw := gateway.New(cfg.Gateway)
	lines := transcript.NewBuilder(
		transcript.NewChainResolver(users, gw, contactCacheTTL),
		cfg.Chat.ResolveConcurrency,
	)

	llmClient, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: llm.Temp(cfg.LLM.Temperature),
		MaxRetries:  cfg.LLM.MaxRetries,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "model", llmClient.Model())

	pipeline := brain.NewPipeline(llmClient, lines, brain.PipelineConfig{
		ChunkSize:   cfg.Chat.ChunkSize,
		Concurrency: cfg.Chat.Concurrency,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, m)

	router := command.NewRouter(command.Deps{
		Sender:    gw,
		Messages:  stores.Messages(),
		Archive:   stores.Archive(),
		Tracker:   meeting.NewTracker(markers, m),
		Pipeline:  pipeline,
		Registrar: users,
		Lines:     lines,
		Recorder:  m,
	}, command.Config{
		SummarizeWindow: cfg.Chat.SummarizeWindow,
		TasksWindow:     cfg.Chat.TasksWindow,
		Location:        location,
		Prompts:         prompts,
		NewID:           id.New,
	})

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    int64(cfg.Pipeline.Workers),
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, stores.Messages(), router, m, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Concurrency: cfg.Pipeline.Workers,
	})

	reclaimer := worker.NewReclaimer(consumer, worker.ReclaimerConfig{
		MinIdle:       cfg.Pipeline.ClaimIdle,
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(cfg.Pipeline.MaxAttempts),
	}, w.Handle)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsRouter(cfg, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.InfoContext(ctx, "metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer first, it is quick; the worker may be mid-command
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func metricsRouter(cfg config.Config, m *metrics.Metrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	return router
}

const banner = `
 _   _  ___ _____ _   _ _     ___ ____
| \ | |/ _ \_   _| | | | |   |_ _/ ___|
|  \| | | | || | | | | | |    | |\___ \
| |\  | |_| || | | |_| | |___ | | ___) |
|_| \_|\___/ |_|  \___/|_____|___|____/  worker
`
