package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"quitguard/internal/config"
	"quitguard/internal/model"
)

// Publisher forwards finished decisions to the verdict topic for downstream
// consumers (ranking, matchmaking, player-facing notifications). Writes are
// retried with Fibonacci backoff; a broker blip must not lose a verdict.
type Publisher struct {
	writer     *kafka.Writer
	maxRetries uint64
	logger     *slog.Logger
}

// NewPublisher returns nil when publishing is disabled; callers nil-guard.
func NewPublisher(cfg config.PublishConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("verdict publishing disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("verdict publishing enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Publish writes one decision, keyed by match so all verdicts for a match
// land on the same partition.
func (p *Publisher) Publish(ctx context.Context, d model.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := d.MatchID
	if key == "" {
		key = d.ID
	}
	b := retry.NewFibonacci(200 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(p.maxRetries, b), func(ctx context.Context) error {
		if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
			if p.logger != nil {
				p.logger.Warn("verdict publish attempt failed", "decision_id", d.ID, "err", err)
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
