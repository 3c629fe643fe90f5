// Package history keeps a bounded in-memory record of recent tick results
// for the ops surface. The reconciler never reads it: ticks stay stateless.
package history

import (
	"sync"
	"time"

	"github.com/backscale/backscale/pkg/scaling"
)

// Store is a thread-safe bounded store of recent tick results.
type Store struct {
	mu      sync.RWMutex
	results []scaling.TickResult
	limit   int
	ttl     time.Duration
}

// NewStore creates a store keeping at most limit results, each for at most
// ttl. Non-positive values select 100 results and 1 hour.
func NewStore(limit int, ttl time.Duration) *Store {
	if limit <= 0 {
		limit = 100
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{limit: limit, ttl: ttl}
}

// Add records a tick result, evicting the oldest once over the limit.
func (s *Store) Add(res scaling.TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if len(s.results) > s.limit {
		s.results = s.results[len(s.results)-s.limit:]
	}
}

// Recent returns up to n results, newest first. n <= 0 returns everything.
func (s *Store) Recent(n int) []scaling.TickResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.results) {
		n = len(s.results)
	}
	out := make([]scaling.TickResult, 0, n)
	for i := len(s.results) - 1; i >= len(s.results)-n; i-- {
		out = append(out, s.results[i])
	}
	return out
}

// CleanupExpired removes results older than the TTL relative to now.
// Returns the number removed.
func (s *Store) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.ttl)
	keepFrom := 0
	for keepFrom < len(s.results) && s.results[keepFrom].Timestamp.Before(cutoff) {
		keepFrom++
	}
	removed := keepFrom
	if removed > 0 {
		s.results = append([]scaling.TickResult(nil), s.results[keepFrom:]...)
	}
	return removed
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
