package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/browser"
	"github.com/edgecomet/detailwatch/internal/common/config"
	logutil "github.com/edgecomet/detailwatch/internal/common/logger"
	"github.com/edgecomet/detailwatch/internal/common/metricsserver"
	"github.com/edgecomet/detailwatch/internal/common/redis"
	"github.com/edgecomet/detailwatch/internal/fetch"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/internal/service"
	"github.com/edgecomet/detailwatch/internal/sink"
	"github.com/edgecomet/detailwatch/internal/watch"
)

func main() {
	configPath := flag.String("c", "configs/detail-watcher.yaml",
		"Path to detail-watcher configuration file")
	flag.Parse()

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	configMgr, err := config.NewConfigManager(absPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	cfg := configMgr.GetConfig()

	// INFO during startup even when the configured level is higher
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}

	logger := dynamicLogger.Logger

	logger.Info("Detail watcher starting",
		zap.String("server", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("target", cfg.Target.URL),
		zap.String("dedup", cfg.Watch.Dedup))

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.Start(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	chrome, err := browser.Launch(cfg.Chrome, logger)
	if err != nil {
		logger.Fatal("Failed to launch Chrome", zap.Error(err))
	}

	tab, err := chrome.OpenTab(cfg.Target)
	if err != nil {
		chrome.Close()
		logger.Fatal("Failed to open target", zap.Error(err))
	}

	latest := sink.NewLatestStore()
	sinks := []sink.Sink{
		sink.NewPageSink(tab, cfg.Watch.Publish),
		latest,
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			chrome.Close()
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		redisSink := sink.NewRedisSink(redisClient, cfg.Redis, logger)
		sinks = append(sinks, redisSink)

		restoreCtx, restoreCancel := context.WithTimeout(context.Background(), cfg.Watch.SinkTimeout.ToDuration())
		stored, err := redisSink.Stored(restoreCtx)
		restoreCancel()
		switch {
		case err != nil:
			logger.Warn("Failed to read stored result", zap.Error(err))
		case stored != nil && latest.Restore(stored):
			logger.Info("Restored last stored result",
				zap.String("session_id", stored.SessionID),
				zap.String("url", stored.URL),
				zap.Time("accepted_at", stored.AcceptedAt))
		}
	}

	if cfg.Events.File.Enabled {
		fileSink, err := sink.NewFileSink(cfg.Events.File)
		if err != nil {
			chrome.Close()
			logger.Fatal("Failed to open event log", zap.Error(err))
		}
		sinks = append(sinks, fileSink)
		logger.Info("Event log enabled", zap.String("path", cfg.Events.File.Path))
	}

	router := sink.NewRouter(sinks, cfg.Watch.SinkTimeout.ToDuration(), metricsCollector, logger)

	fetcher := fetch.NewFetcher(
		cfg.Watch.FetchTimeout.ToDuration(),
		cfg.Watch.FetchMaxBytes,
		cfg.Watch.StateContainers,
		logger,
	)

	coordinator := watch.NewCoordinator(
		cfg.Watch,
		cfg.Chrome.CallTimeout.ToDuration(),
		tab,
		fetcher,
		router,
		metricsCollector,
		logger,
	)
	tab.SetListener(coordinator)

	apiServer := service.NewServer(cfg.Server, coordinator, latest, metricsCollector, logger)
	if err := apiServer.Start(); err != nil {
		chrome.Close()
		logger.Fatal("Failed to start status API", zap.Error(err))
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- coordinator.Run(runCtx)
	}()

	logger.Info("Detail watcher ready",
		zap.String("session_id", coordinator.SessionID()),
		zap.String("chrome", chrome.Version()),
		zap.String("listen", apiServer.Addr()))

	// Switch to configured log level after startup is complete
	dynamicLogger.SwitchToConfiguredLevel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-runDone:
		logger.Error("Coordinator exited", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status API shutdown error", zap.Error(err))
	}

	// The loop delivers to the sinks; stop it before closing them
	stopRun()
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		logger.Warn("Coordinator did not stop in time")
	}

	if err := router.Close(); err != nil {
		logger.Error("Failed to close sinks", zap.Error(err))
	}

	tab.Close()
	chrome.Close()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		} else {
			logger.Info("Metrics server shutdown complete")
		}
	}

	logger.Info("Detail watcher stopped")
	_ = logger.Sync()
}
