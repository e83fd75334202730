package stats

import (
	"sync"
	"time"

	"quitguard/internal/model"
)

// Store accumulates classification counters since startup (or the last
// clear). Everything is O(1) per decision; the API serves Snapshot.
type Store struct {
	mu           sync.RWMutex
	total        int64
	lossApplied  int64
	rejections   int64
	byType       map[model.DisconnectType]int64
	byRule       map[string]int64
	bySource     map[string]int64
	flagCounts   FlagCounts
	since        time.Time
	lastDecision time.Time
}

// FlagCounts tallies how often each derived signal flag was set across all
// classified disconnects.
type FlagCounts struct {
	QuitDetected    int64 `json:"quitDetected"`
	TimeoutDetected int64 `json:"timeoutDetected"`
	HighPacketLoss  int64 `json:"highPacketLoss"`
	HighLatency     int64 `json:"highLatency"`
	HardDisconnect  int64 `json:"hardDisconnect"`
}

// Snapshot is the JSON shape served by the stats endpoint.
type Snapshot struct {
	Since        time.Time                      `json:"since"`
	LastDecision *time.Time                     `json:"lastDecision,omitempty"`
	Total        int64                          `json:"total"`
	LossApplied  int64                          `json:"lossApplied"`
	Rejections   int64                          `json:"rejections"`
	ByType       map[model.DisconnectType]int64 `json:"byType"`
	ByRule       map[string]int64               `json:"byRule"`
	BySource     map[string]int64               `json:"bySource"`
	Flags        FlagCounts                     `json:"flags"`
}

func NewStore() *Store {
	return &Store{
		byType:   make(map[model.DisconnectType]int64),
		byRule:   make(map[string]int64),
		bySource: make(map[string]int64),
		since:    time.Now().UTC(),
	}
}

func (s *Store) RecordDecision(d model.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if d.Result.LossApplied {
		s.lossApplied++
	}
	s.byType[d.Result.Type]++
	if d.Rule != "" {
		s.byRule[d.Rule]++
	}
	source := d.Source
	if source == "" {
		source = "unknown"
	}
	s.bySource[source]++

	f := d.Result.Signals
	if f.QuitDetected {
		s.flagCounts.QuitDetected++
	}
	if f.TimeoutDetected {
		s.flagCounts.TimeoutDetected++
	}
	if f.HighPacketLoss {
		s.flagCounts.HighPacketLoss++
	}
	if f.HighLatency {
		s.flagCounts.HighLatency++
	}
	if f.HardDisconnect {
		s.flagCounts.HardDisconnect++
	}
	s.lastDecision = d.Timestamp
}

func (s *Store) RecordRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections++
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Since:       s.since,
		Total:       s.total,
		LossApplied: s.lossApplied,
		Rejections:  s.rejections,
		ByType:      make(map[model.DisconnectType]int64, len(s.byType)),
		ByRule:      make(map[string]int64, len(s.byRule)),
		BySource:    make(map[string]int64, len(s.bySource)),
		Flags:       s.flagCounts,
	}
	for k, v := range s.byType {
		snap.ByType[k] = v
	}
	for k, v := range s.byRule {
		snap.ByRule[k] = v
	}
	for k, v := range s.bySource {
		snap.BySource[k] = v
	}
	if !s.lastDecision.IsZero() {
		ts := s.lastDecision
		snap.LastDecision = &ts
	}
	return snap
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.lossApplied = 0
	s.rejections = 0
	s.byType = make(map[model.DisconnectType]int64)
	s.byRule = make(map[string]int64)
	s.bySource = make(map[string]int64)
	s.flagCounts = FlagCounts{}
	s.since = time.Now().UTC()
	s.lastDecision = time.Time{}
}
