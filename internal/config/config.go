package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every service-level knob. Classification thresholds are
// deliberately absent: they are contract constants in the engine package,
// overridable only per call and only for the timeout.
type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Publish   PublishConfig   `json:"publish" yaml:"publish"`
	Decisions DecisionsConfig `json:"decisions" yaml:"decisions"`
}

type IngestConfig struct {
	ChannelBuffer int           `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	Kafka         KafkaConfig   `json:"kafka" yaml:"kafka"`
	TCP           TCPConfig     `json:"tcp" yaml:"tcp"`
	Replay        ReplayConfig  `json:"replay" yaml:"replay"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// TCPConfig accepts game servers streaming newline-delimited JSON events
// over a long-lived connection.
type TCPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// ReplayConfig points the service at newline-delimited JSON event logs for
// backfill or shadow evaluation of recorded disconnects.
type ReplayConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Brokers    []string `json:"brokers" yaml:"brokers"`
	Topic      string   `json:"topic" yaml:"topic"`
	MaxRetries uint64   `json:"max_retries" yaml:"max_retries"`
}

type DecisionsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			DedupeWindow:  60 * time.Second,
			Kafka: KafkaConfig{
				Enabled: false,
				Topic:   "disconnect-events",
				GroupID: "quitguard",
			},
			TCP:    TCPConfig{Enabled: false, Addr: ":9000"},
			Replay: ReplayConfig{Enabled: false, StartAtEnd: true},
		},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:quitguard.db?_pragma=busy_timeout(5000)"},
		Publish: PublishConfig{
			Enabled:    false,
			Topic:      "disconnect-verdicts",
			MaxRetries: 5,
		},
		Decisions: DecisionsConfig{StoreLimit: 1000},
	}
}

// Load reads a config file over the defaults. JSON and YAML are both
// accepted; a document starting with { or [ is treated as JSON.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := strings.TrimSpace(string(content))
	if doc == "" {
		return nil, errors.New("config file is empty")
	}

	cfg := DefaultConfig()
	decode := yaml.Unmarshal
	if doc[0] == '{' || doc[0] == '[' {
		decode = func(data []byte, v any) error { return json.Unmarshal(data, v) }
	}
	if err := decode([]byte(doc), cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.DedupeWindow < 0 {
		cfg.Ingest.DedupeWindow = 0
	}
	if cfg.Ingest.Kafka.Topic == "" {
		cfg.Ingest.Kafka.Topic = "disconnect-events"
	}
	if cfg.Ingest.Kafka.GroupID == "" {
		cfg.Ingest.Kafka.GroupID = "quitguard"
	}
	if cfg.Publish.Topic == "" {
		cfg.Publish.Topic = "disconnect-verdicts"
	}
	if cfg.Publish.MaxRetries == 0 {
		cfg.Publish.MaxRetries = 5
	}
	if cfg.Decisions.StoreLimit <= 0 {
		cfg.Decisions.StoreLimit = 1000
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled && len(cfg.Ingest.Kafka.Brokers) == 0 {
		return errors.New("ingest.kafka.brokers required when ingest.kafka.enabled is true")
	}
	if cfg.Ingest.TCP.Enabled && cfg.Ingest.TCP.Addr == "" {
		return errors.New("ingest.tcp.addr required when ingest.tcp.enabled is true")
	}
	if cfg.Ingest.Replay.Enabled && len(cfg.Ingest.Replay.Files) == 0 {
		return errors.New("ingest.replay.files required when ingest.replay.enabled is true")
	}
	if cfg.Publish.Enabled {
		if len(cfg.Publish.Brokers) == 0 || cfg.Publish.Topic == "" {
			return errors.New("publish requires brokers and topic when enabled")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}

// fileStamp identifies one version of the backing file. Size is tracked
// alongside mtime so an editor rewriting within the same second is still
// noticed.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// Manager hands out the current config lock-free and reloads it from disk
// when the backing file changes.
type Manager struct {
	path  string
	cfg   atomic.Value
	stamp fileStamp
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	m.stamp = stat(path)
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Reload
// returns the held config unchanged and Watch never fires.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	m.stamp = stat(m.path)
	return cfg, nil
}

// Watch polls the backing file until ctx ends, reloading when its stamp
// changes. A reload that fails to parse or validate keeps the previous
// config and reports through onError.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onReload func(*Config), onError func(error)) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if stat(m.path) == m.stamp {
			continue
		}
		cfg, err := m.Reload()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if onReload != nil {
			onReload(cfg)
		}
	}
}

func stat(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
