package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sendqueue/internal/config"
	"sendqueue/internal/constants"
	"sendqueue/internal/database"
	"sendqueue/internal/jobs"
	"sendqueue/internal/media"
	"sendqueue/internal/metrics"
	"sendqueue/internal/models"
	"sendqueue/internal/send"
	"sendqueue/internal/service"
	"sendqueue/internal/tracing"
	"sendqueue/pkg/transport"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sendqueue %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting sendqueue")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogger(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	registry := metrics.GetRegistry()
	storageReady := jobs.NewReadyBarrier()

	db, err := database.Open(ctx, cfg.Database, config.DatabaseOpenBackoff(cfg), database.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := ensureSelfConversation(ctx, db, cfg.Transport.OwnServiceID, logger); err != nil {
		return err
	}
	storageReady.MarkReady()

	client := transport.NewClient(transport.Config{
		URL:              cfg.Transport.URL,
		AuthToken:        cfg.Transport.AuthToken,
		Timeout:          config.TransportTimeout(cfg),
		HandshakeTimeout: time.Duration(constants.DefaultTransportHandshakeTimeoutMs) * time.Millisecond,
		MaxFailures:      uint32(cfg.Transport.CircuitBreakerFailures),
		BreakerTimeout:   config.BreakerTimeout(cfg),
	}, logger)
	go client.Run(ctx)
	defer client.Close()

	ownServiceID := cfg.Transport.OwnServiceID
	gate := jobs.NewGate(
		jobs.IdentityFunc(func() bool { return ownServiceID != "" }),
		client,
		storageReady,
		logger,
		jobs.WithBackoffCurve(config.BackoffCurve(cfg)),
		jobs.WithOnlinePollInterval(config.OnlinePollInterval(cfg)),
	)

	queue := jobs.NewQueue(db.Jobs(), gate, logger,
		jobs.WithPollInterval(config.QueuePollInterval(cfg)),
		jobs.WithDefaultDeadline(config.MessageDeadline(cfg)),
		jobs.WithCurve(config.BackoffCurve(cfg)),
		jobs.WithMetrics(registry),
	)

	sender := send.NewService(queue, send.Deps{
		Repository:  db,
		Transport:   client,
		Attachments: media.NewFileLoader(cfg.Attachments),
		Notifier:    &logNotifier{logger: logger},
		Logger:      logger,
		Metrics:     registry,
	}, send.WithSyncChunkSize(cfg.Queue.SyncChunkSize))

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer queue.Stop()

	monitor := service.NewDeliveryMonitor(db.Jobs(), client, config.MonitorInterval(cfg), config.StaleJobThreshold(cfg), logger).
		WithRegistry(registry)
	monitor.Start(ctx)
	defer monitor.Stop()

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.SetInterval(time.Duration(constants.DefaultConfigWatchIntervalMs) * time.Millisecond)
	watcher.OnConfigChange(func(_, updated *models.Config) {
		configureLogger(logger, updated.LogLevel, *verbose)
		monitor.SetStaleThreshold(config.StaleJobThreshold(updated))
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.Warnf("Configuration watcher stopped: %v", err)
		}
	}()

	server := NewServer(cfg.Server, ServerDeps{
		Jobs:      db.Jobs(),
		Sender:    sender,
		Storage:   db,
		Transport: client,
		Backlog:   monitor,
		Registry:  registry,
	}, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
