package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/taskrun/internal/application/events"
	"github.com/aescanero/taskrun/internal/application/manager"
	"github.com/aescanero/taskrun/internal/application/orchestrator"
	"github.com/aescanero/taskrun/internal/config"
	"github.com/aescanero/taskrun/internal/loader"
	"github.com/aescanero/taskrun/internal/steps"
	redisrelay "github.com/aescanero/taskrun/pkg/adapters/events/redis"
	"github.com/aescanero/taskrun/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/taskrun/pkg/api/grpc"
	"github.com/aescanero/taskrun/pkg/api/http"
	"github.com/aescanero/taskrun/pkg/api/websocket"
	"github.com/aescanero/taskrun/pkg/workflow"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	workflowFile := flag.String("f", "", "run a single workflow from a YAML file and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if *workflowFile != "" {
		os.Exit(runOnce(cfg, logger, *workflowFile))
	}
	serve(cfg, logger)
}

// runOnce executes a workflow file synchronously and prints the summary.
func runOnce(cfg *config.Config, logger *zap.Logger, path string) int {
	def, err := loader.LoadFile(path)
	if err != nil {
		logger.Error("failed to load workflow", zap.Error(err))
		return 1
	}

	registry := steps.NewRegistry(logger)
	tasks, err := def.Build(registry)
	if err != nil {
		logger.Error("failed to build workflow", zap.Error(err))
		return 1
	}

	runner := orchestrator.NewRunner(
		orchestrator.NewValidator(),
		workflow.NopMetrics{},
		logger,
		cfg.Defaults(),
	)

	result, err := runner.Run(context.Background(), tasks, events.LogObserver(logger))
	if err != nil {
		logger.Error("workflow rejected", zap.Error(err))
		return 1
	}

	fmt.Printf("workflow %s: %s (%d completed, %d failed, %d skipped of %d) in %s\n",
		def.Name, result.Status,
		result.CompletedTasks, result.FailedTasks, result.SkippedTasks, result.TotalTasks,
		result.Duration.Round(time.Millisecond))
	for _, info := range result.Tasks {
		line := fmt.Sprintf("  %-20s %s", info.ID, info.Status)
		if info.Error != "" {
			line += " (" + info.Error + ")"
		}
		fmt.Println(line)
	}

	if result.Status == workflow.RunFailed {
		return 1
	}
	return 0
}

// serve runs the long-lived API service.
func serve(cfg *config.Config, logger *zap.Logger) {
	logger.Info("starting task runner",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	metricsCollector := prometheus.NewCollector()
	registry := steps.NewRegistry(logger)

	validator := orchestrator.NewValidator()
	runner := orchestrator.NewRunner(validator, metricsCollector, logger, cfg.Defaults())

	runManager := manager.NewManager(
		validator,
		runner,
		metricsCollector,
		logger,
		cfg.Registry.Retention,
		cfg.Registry.PruneInterval,
	)

	// Optional Redis event relay
	var redisClient *goredis.Client
	if cfg.Redis.RelayEnabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		relay := redisrelay.NewStreamsRelay(
			redisClient,
			cfg.Redis.StreamPrefix,
			cfg.Redis.StreamMaxLen,
			logger,
		)
		runManager.SetEventRelay(relay.Observer)
	}

	runManager.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:     cfg.HTTPPort,
		Manager:  runManager,
		Registry: registry,
		Logger:   logger,
	})

	wsHandler := websocket.NewHandler(runManager, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("task runner started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("max_concurrent_tasks", cfg.Engine.MaxConcurrentTasks))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Registry.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := runManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("run manager shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("task runner shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
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
