package engine

import (
	"sync"
	"time"
)

// maxDedupeEntries bounds the cache; an insert that crosses it sweeps out
// expired fingerprints.
const maxDedupeEntries = 10000

// DedupeCache remembers recently seen event fingerprints so at-least-once
// ingest sources (kafka redeliveries, replayed files, reconnecting TCP
// streams) do not produce duplicate decisions.
type DedupeCache struct {
	mu       sync.Mutex
	deadline map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{deadline: make(map[string]time.Time)}
}

// Seen reports whether key is still inside its dedupe window, starting a
// new window as a side effect when it is not. The window length is taken
// per call so a config reload applies to new sightings immediately;
// fingerprints already in flight keep the window they were recorded under.
func (d *DedupeCache) Seen(key string, now time.Time, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dl, ok := d.deadline[key]; ok && now.Before(dl) {
		return true
	}
	d.deadline[key] = now.Add(window)
	if len(d.deadline) > maxDedupeEntries {
		for k, dl := range d.deadline {
			if !now.Before(dl) {
				delete(d.deadline, k)
			}
		}
	}
	return false
}

// Clear forgets every fingerprint.
func (d *DedupeCache) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = make(map[string]time.Time)
}
