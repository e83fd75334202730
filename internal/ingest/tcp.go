package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"quitguard/internal/config"
	"quitguard/internal/model"
)

// StartTCP accepts long-lived connections from game servers that stream
// newline-delimited JSON disconnect events. One decode failure skips the
// line, not the connection; a fleet-side bug must not sever the stream.
func StartTCP(ctx context.Context, cfg *config.Manager, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCP
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp ingest disabled")
		}
		return
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp ingest listen failed", "addr", current.Addr, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Info("tcp ingest enabled", "addr", current.Addr)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go acceptLoop(ctx, ln, out, logger)
}

func acceptLoop(ctx context.Context, ln net.Listener, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("tcp ingest accept failed", "err", err)
			}
			if !BackoffSleep(ctx, time.Second) {
				return
			}
			continue
		}
		go serveConn(ctx, conn, out, logger)
	}
}

func serveConn(ctx context.Context, conn net.Conn, out chan<- model.DisconnectEvent, logger *slog.Logger) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	if logger != nil {
		logger.Debug("tcp stream connected", "remote", remote)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, err := DecodeEvent([]byte(line), "tcp")
		if err != nil {
			if logger != nil {
				logger.Warn("tcp event decode failed", "remote", remote, "err", err)
			}
			continue
		}
		SendNonBlocking(ctx, out, ev, logger)
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream read failed", "remote", remote, "err", err)
	}
	if logger != nil {
		logger.Debug("tcp stream closed", "remote", remote)
	}
}
