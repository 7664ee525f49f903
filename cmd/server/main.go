package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/handler"
	"github.com/speedrun-record/internal/kafka"
	"github.com/speedrun-record/internal/postgres"
	"github.com/speedrun-record/internal/record"
	"github.com/speedrun-record/internal/redis"
	"github.com/speedrun-record/internal/service"
	"github.com/speedrun-record/internal/speedrun"
	"github.com/speedrun-record/internal/websocket"
	"github.com/speedrun-record/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := cfg.Record.BoardID()

	// View store: Redis shares the snapshot between replicas
	var store record.Store = record.NewMemoryStore()
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisStore, err := redis.NewSnapshotStore(&cfg.Redis, board, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("connected to Redis")
	}

	var sinks service.Sinks

	// Snapshot archive
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer repo.Close()

		if err := repo.RunMigrations(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		sinks.Archive = repo
		logger.Info("connected to PostgreSQL")
	}

	// Record events
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka publisher", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without Kafka", "error", err)
		} else {
			defer func() {
				if err := publisher.Close(); err != nil {
					logger.Error("failed to close Kafka publisher", "error", err)
				}
			}()
			sinks.Events = publisher
		}
	}

	client := speedrun.NewClient(&cfg.Speedrun, nil, logger)
	fetcher := record.NewFetcher(client, &cfg.Record, logger)
	view := record.NewView(store, &cfg.Record)

	recordService := service.NewRecordService(fetcher, view, &cfg.Record, sinks, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(recordService.CurrentForBoard, logger)
	go wsHub.Run()
	defer wsHub.Stop()
	recordService.SetBroadcaster(wsHub)

	loader := worker.NewLoader(recordService, view, &cfg.Loader, logger)
	if err := loader.Start(ctx); err != nil {
		return fmt.Errorf("starting loader: %w", err)
	}

	httpHandler := handler.NewHandler(recordService, wsHub, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "board", board)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", "error", err)
		}
		if err := loader.Stop(); err != nil {
			logger.Error("failed to stop loader", "error", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
