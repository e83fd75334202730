package decisions

import (
	"sync"
	"time"

	"quitguard/internal/model"
)

// Store keeps the most recent decisions in memory for the audit tail the
// API serves. It is a bounded ring: when full, the oldest decision is
// dropped. Durable history belongs to the storage package.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Decision
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(d model.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, d)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = d
}

// List returns up to limit of the most recent decisions, oldest first.
// limit <= 0 returns everything retained.
func (s *Store) List(limit int) []model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Decision, 0, limit)
	start := len(s.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Decision, 0)
	for _, d := range s.buf {
		if !d.Timestamp.Before(ts) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
