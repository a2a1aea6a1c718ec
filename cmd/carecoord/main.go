package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/carecoord/internal/application/orchestrator"
	"github.com/aescanero/carecoord/internal/application/workers"
	"github.com/aescanero/carecoord/internal/config"
	"github.com/aescanero/carecoord/pkg/adapters/agents/rest"
	eventsmemory "github.com/aescanero/carecoord/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/carecoord/pkg/adapters/events/redis"
	"github.com/aescanero/carecoord/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/carecoord/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/carecoord/pkg/adapters/storage/redis"
	"github.com/aescanero/carecoord/pkg/api/grpc"
	"github.com/aescanero/carecoord/pkg/api/http"
	"github.com/aescanero/carecoord/pkg/api/websocket"
	"github.com/aescanero/carecoord/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting carecoord",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Adapters
	registry := promclient.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := prometheus.NewCollector(registry)

	sessions := newSessionStore(cfg, redisClient, logger)
	eventBus := newEventBus(cfg, redisClient, logger)

	agents := rest.NewClient(rest.Endpoints{
		SymptomAnalyzer:   cfg.Agents.SymptomAnalyzerURL,
		DiseasePrediction: cfg.Agents.DiseasePredictionURL,
		PatientJourney:    cfg.Agents.PatientJourneyURL,
		PromptProcessor:   cfg.Agents.PromptProcessorURL,
	}, cfg.Agents.RequestTimeout, logger)

	// Application
	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	orchestratorMgr := orchestrator.NewManager(orchestrator.Components{
		Validator: orchestrator.NewValidator(cfg.Validation.StrictDataFlow, metricsCollector, logger),
		Sequencer: orchestrator.NewSequencer(logger),
		Dispatcher: orchestrator.NewDispatcher(orchestrator.AgentClients{
			Symptoms: agents,
			Diseases: agents,
			Journeys: agents,
		}, cfg.Agents.DefaultPatientID, metricsCollector, logger),
		Aggregator: orchestrator.NewAggregator(logger),
		Sessions:   sessions,
		Events:     eventBus,
		Metrics:    metricsCollector,
		Prompts:    agents,
		Jobs:       workerPool,
	}, cfg.Timeouts.OrchestrationTimeout, logger)

	// API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Health:       workerPool.Health(),
		Gatherer:     registry,
		Logger:       logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(orchestratorMgr, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)

	logger.Info("carecoord started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("session_backend", cfg.Sessions.Backend),
		zap.String("event_backend", cfg.Events.Backend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	<-gctx.Done()
	logger.Info("shutting down", zap.Error(context.Cause(gctx)))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	grpcServer.SetServing(false)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("carecoord shut down complete")
}

func newSessionStore(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.SessionStore {
	if cfg.Sessions.Backend == config.BackendRedis {
		return storageredis.NewSessionStore(client, cfg.Sessions.TTL, logger)
	}
	return storagememory.NewSessionStore()
}

func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.EventBus {
	if cfg.Events.Backend == config.BackendRedis {
		return eventsredis.NewStreamsEventBus(client, cfg.Events.StreamMaxLen, logger)
	}
	return eventsmemory.NewEventBus(logger)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
