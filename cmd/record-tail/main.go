// Command record-tail follows the record event topic and logs each event.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/kafka"
)

// eventLogger writes every consumed event to the log
type eventLogger struct {
	logger *slog.Logger
}

func (h *eventLogger) HandleRecordEvent(_ context.Context, event domain.RecordEvent) error {
	switch event.Type {
	case domain.EventTypeRecordLoaded:
		h.logger.Info("record loaded",
			"board", event.Board,
			"run_id", event.RunID,
			"holder", event.Holder,
			"time", event.Time,
			"verify_date", event.VerifyDate,
			"video", event.Video,
			"occurred_at", event.OccurredAt,
		)
	case domain.EventTypeNoRecord:
		h.logger.Info("leaderboard has no record", "board", event.Board, "occurred_at", event.OccurredAt)
	default:
		h.logger.Warn("unknown record event", "type", event.Type, "board", event.Board)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides the config file")
	topic := flag.String("topic", "", "Kafka topic, overrides the config file")
	fromOldest := flag.Bool("from-oldest", false, "Replay the topic from the oldest retained event")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("no Kafka brokers configured")
		os.Exit(1)
	}

	consumer, err := kafka.NewConsumer(&cfg.Kafka, &eventLogger{logger: logger}, *fromOldest, logger)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("failed to start Kafka consumer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		logger.Error("failed to stop Kafka consumer", "error", err)
		os.Exit(1)
	}
}
