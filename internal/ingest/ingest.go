package ingest

import (
	"context"
	"log/slog"
	"time"

	"quitguard/internal/model"
)

// SendNonBlocking offers an event to the pipeline channel without ever
// stalling an ingest source. When the channel is full the event is dropped
// and logged; a slow consumer must not back-pressure a game server.
func SendNonBlocking(ctx context.Context, out chan<- model.DisconnectEvent, ev model.DisconnectEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping disconnect event",
				"match_id", ev.MatchID,
				"player_id", ev.PlayerID,
				"source", ev.Source,
			)
		}
		return false
	}
}

// BackoffSleep sleeps for d unless the context ends first. Returns false on
// cancellation so ingest loops can exit promptly.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
