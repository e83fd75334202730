package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"quitguard/internal/config"
	"quitguard/internal/model"
)

// StartKafka consumes disconnect events from the configured topic. Game
// fleets that cannot block a match-end path on an HTTP round trip publish
// events to the broker instead; classification happens asynchronously.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        current.Brokers,
		Topic:          current.Topic,
		GroupID:        current.GroupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})
	go consumeKafka(ctx, reader, out, logger)
}

func consumeKafka(ctx context.Context, reader *kafka.Reader, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read failed", "err", err)
			}
			if !BackoffSleep(ctx, time.Second) {
				return
			}
			continue
		}
		ev, err := DecodeEvent(m.Value, "kafka")
		if err != nil {
			if logger != nil {
				logger.Warn("kafka event decode failed", "partition", m.Partition, "offset", m.Offset, "err", err)
			}
			continue
		}
		SendNonBlocking(ctx, out, ev, logger)
	}
}
