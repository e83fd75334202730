package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"quitguard/internal/config"
	"quitguard/internal/model"
)

// StartReplay tails newline-delimited JSON disconnect event logs. Used for
// backfilling decisions from recorded matches and for shadow-evaluating the
// engine against production traffic dumps.
func StartReplay(ctx context.Context, cfg *config.Manager, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.Replay
	if !current.Enabled {
		if logger != nil {
			logger.Info("replay ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("replay ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		t := &tailer{path: path, out: out, logger: logger}
		go t.run(ctx, current.StartAtEnd)
	}
}

// tailer follows one event log across rotations: EOF waits for more data, a
// shrinking file means truncation and forces a reopen from the top.
type tailer struct {
	path   string
	out    chan<- model.DisconnectEvent
	logger *slog.Logger
}

func (t *tailer) run(ctx context.Context, startAtEnd bool) {
	seekEnd := startAtEnd
	for ctx.Err() == nil {
		f, err := os.Open(t.path)
		if err != nil {
			t.warn("replay open failed", err)
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}
		var offset int64
		if seekEnd {
			if pos, err := f.Seek(0, io.SeekEnd); err == nil {
				offset = pos
			}
		}
		// start_at_end applies to the first open only; a rotated file is new
		// content and is read from the beginning.
		seekEnd = false
		t.follow(ctx, f, offset)
		_ = f.Close()
	}
}

func (t *tailer) follow(ctx context.Context, f *os.File, offset int64) {
	r := bufio.NewReader(f)
	var pending string
	for {
		chunk, err := r.ReadString('\n')
		offset += int64(len(chunk))
		switch {
		case err == nil:
			t.emit(ctx, pending+chunk)
			pending = ""
		case err == io.EOF:
			// A line flushed halfway stays pending until the writer
			// finishes it.
			pending += chunk
			if !BackoffSleep(ctx, 200*time.Millisecond) {
				return
			}
			info, statErr := os.Stat(t.path)
			if statErr != nil || info.Size() < offset {
				return
			}
		default:
			t.warn("replay read failed", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (t *tailer) emit(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	ev, err := DecodeEvent([]byte(line), "replay")
	if err != nil {
		t.warn("replay event decode failed", err)
		return
	}
	SendNonBlocking(ctx, t.out, ev, t.logger)
}

func (t *tailer) warn(msg string, err error) {
	if t.logger != nil {
		t.logger.Warn(msg, "path", t.path, "err", err)
	}
}
