package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quitguard/internal/config"
	"quitguard/internal/decisions"
	"quitguard/internal/engine"
	"quitguard/internal/ingest"
	"quitguard/internal/model"
	"quitguard/internal/stats"
)

// Pipeline is the slice of the engine the API needs: synchronous
// classification and the admin reset.
type Pipeline interface {
	Process(ctx context.Context, ev model.DisconnectEvent) (model.Decision, error)
	Reset()
}

type Server struct {
	cfg       *config.Manager
	stats     *stats.Store
	decisions *decisions.Store
	pipeline  Pipeline
	logger    *slog.Logger
	version   string
	started   time.Time
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	UptimeSec  int64         `json:"uptime_sec"`
	ConfigPath string        `json:"config_path,omitempty"`
	Ingest     ingestStatus  `json:"ingest"`
	API        apiStatus     `json:"api"`
	Storage    storageStatus `json:"storage"`
	Publish    publishStatus `json:"publish"`
}

type ingestStatus struct {
	Kafka  bool `json:"kafka"`
	TCP    bool `json:"tcp"`
	Replay bool `json:"replay"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

type publishStatus struct {
	Enabled bool   `json:"enabled"`
	Topic   string `json:"topic,omitempty"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

func Start(ctx context.Context, cfg *config.Manager, statsStore *stats.Store, decisionStore *decisions.Store, pipeline Pipeline, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, statsStore, decisionStore, pipeline, logger, version)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler()}
	go shutdownOnCancel(ctx, httpServer)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// Handler builds the route table without binding a listener. Used by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/classify", s.handleClassify)
	mux.HandleFunc("/v1/decisions", s.handleDecisions)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/admin/clear", s.handleClear)
	return mux
}

func NewServer(cfg *config.Manager, statsStore *stats.Store, decisionStore *decisions.Store, pipeline Pipeline, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:       cfg,
		stats:     statsStore,
		decisions: decisionStore,
		pipeline:  pipeline,
		logger:    logger,
		version:   version,
		started:   time.Now().UTC(),
	}
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "unable to read request body"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "request body is empty"})
		return
	}

	ev, err := ingest.DecodeEvent(body, "api")
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingQuitAction):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing_field", Message: err.Error()})
		case errors.Is(err, ingest.ErrIncompleteSnapshot):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		}
		return
	}

	d, err := s.pipeline.Process(r.Context(), ev)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_signals", Violations: verr.Violations})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d.Result)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	var list []model.Decision
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "since must be RFC3339"})
			return
		}
		list = s.decisions.Since(ts)
	} else {
		limit, _ := strconv.Atoi(q.Get("limit"))
		list = s.decisions.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": list,
		"count":     len(list),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": s.stats.Snapshot(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			Kafka:  cfg.Ingest.Kafka.Enabled,
			TCP:    cfg.Ingest.TCP.Enabled,
			Replay: cfg.Ingest.Replay.Enabled,
		},
		API:     apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage: storageStatus{Enabled: cfg.Storage.Enabled, Driver: cfg.Storage.Driver},
		Publish: publishStatus{Enabled: cfg.Publish.Enabled, Topic: cfg.Publish.Topic},
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.decisions != nil {
			s.decisions.Clear()
		}
		if s.stats != nil {
			s.stats.Clear()
		}
		if s.pipeline != nil {
			s.pipeline.Reset()
		}
	case "decisions":
		if s.decisions != nil {
			s.decisions.Clear()
		}
	case "stats":
		if s.stats != nil {
			s.stats.Clear()
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "target must be all, decisions or stats"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
