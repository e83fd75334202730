package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"quitguard/internal/config"
	"quitguard/internal/decisions"
	"quitguard/internal/model"
	"quitguard/internal/stats"
	"quitguard/internal/storage"
)

// Publisher forwards finished decisions to downstream consumers
// (matchmaking, ranking). A nil publisher disables forwarding.
type Publisher interface {
	Publish(ctx context.Context, d model.Decision) error
}

// Engine wraps the pure classification core with the service concerns a
// deployment needs: audit records, counters, structured logs, persistence
// and verdict publishing. Classification itself stays stateless; all state
// here is bookkeeping around it.
type Engine struct {
	logger    *slog.Logger
	stats     *stats.Store
	decisions *decisions.Store
	store     storage.Store
	publisher Publisher
	cfg       atomic.Value
	deDupe    *DedupeCache
}

func NewEngine(cfg *config.Config, logger *slog.Logger, statsStore *stats.Store, decisionStore *decisions.Store, store storage.Store, publisher Publisher) *Engine {
	e := &Engine{
		logger:    logger,
		stats:     statsStore,
		decisions: decisionStore,
		store:     store,
		publisher: publisher,
		deDupe:    NewDedupeCache(),
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes disconnect events from the async ingest channel until the
// context is cancelled. Broker redeliveries are dropped by the dedupe cache
// so at-least-once sources do not double-count verdicts.
func (e *Engine) Start(ctx context.Context, in <-chan model.DisconnectEvent) {
	go func() {
		for {
			select {
			case ev := <-in:
				if e.isDuplicate(ev, e.config().Ingest.DedupeWindow) {
					continue
				}
				_, _ = e.Process(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Process classifies one disconnect event and fans the outcome out to the
// in-memory stores, the audit store and the publisher. Validation failures
// are recorded as rejections and returned unchanged so synchronous callers
// can surface the violations.
func (e *Engine) Process(ctx context.Context, ev model.DisconnectEvent) (model.Decision, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	if err := ValidateSignals(ev.Signals); err != nil {
		e.recordRejection(ctx, ev, err)
		return model.Decision{}, err
	}

	flags := EvaluateFlags(ev.Signals)
	typ, loss, rule := decide(flags, ev.Signals)

	d := model.Decision{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		MatchID:   ev.MatchID,
		PlayerID:  ev.PlayerID,
		Source:    ev.Source,
		Rule:      rule,
		Input:     ev.Signals,
		Result: model.ClassificationResult{
			Type:        typ,
			LossApplied: loss,
			Signals:     flags,
		},
	}

	if e.decisions != nil {
		e.decisions.Add(d)
	}
	if e.stats != nil {
		e.stats.RecordDecision(d)
	}
	if e.logger != nil {
		e.logger.Info("disconnect classified",
			"decision_id", d.ID,
			"match_id", d.MatchID,
			"player_id", d.PlayerID,
			"source", d.Source,
			"type", d.Result.Type,
			"loss_applied", d.Result.LossApplied,
			"rule", d.Rule,
		)
	}
	if e.store != nil {
		if err := e.store.SaveDecision(ctx, d); err != nil && e.logger != nil {
			e.logger.Error("audit store save failed", "decision_id", d.ID, "err", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, d); err != nil && e.logger != nil {
			e.logger.Error("verdict publish failed", "decision_id", d.ID, "err", err)
		}
	}
	return d, nil
}

func (e *Engine) recordRejection(ctx context.Context, ev model.DisconnectEvent, err error) {
	var verr *ValidationError
	rej := model.Rejection{
		Timestamp: time.Now().UTC(),
		MatchID:   ev.MatchID,
		PlayerID:  ev.PlayerID,
		Source:    ev.Source,
	}
	if errors.As(err, &verr) {
		rej.Violations = verr.Violations
	} else {
		rej.Violations = []string{err.Error()}
	}
	if e.stats != nil {
		e.stats.RecordRejection()
	}
	if e.logger != nil {
		e.logger.Warn("disconnect signals rejected",
			"match_id", ev.MatchID,
			"player_id", ev.PlayerID,
			"source", ev.Source,
			"violations", rej.Violations,
		)
	}
	if e.store != nil {
		if saveErr := e.store.SaveRejection(ctx, rej); saveErr != nil && e.logger != nil {
			e.logger.Error("audit store save failed", "err", saveErr)
		}
	}
}

// Reset drops dedupe state. In-memory decision and stats stores are cleared
// by their owners.
func (e *Engine) Reset() {
	e.deDupe.Clear()
}

func (e *Engine) isDuplicate(ev model.DisconnectEvent, dedupeWindow time.Duration) bool {
	if dedupeWindow <= 0 {
		return false
	}
	return e.deDupe.Seen(hashEvent(ev), time.Now().UTC(), dedupeWindow)
}

// hashEvent fingerprints an event by its identifying fields and signal
// content. ReceivedAt is deliberately excluded: a redelivered broker message
// arrives later but is still the same event.
func hashEvent(ev model.DisconnectEvent) string {
	payload, _ := json.Marshal(ev.Signals)
	h := sha256.New()
	h.Write([]byte(ev.MatchID))
	h.Write([]byte{'|'})
	h.Write([]byte(ev.PlayerID))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
