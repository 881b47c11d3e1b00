package ldap

import (
	"sync"
	"time"
)

// CacheStats provides statistics about cache usage and refreshes.
type CacheStats struct {
	// Basic counters
	Hits    int64
	Misses  int64
	Entries int64

	// Refresh history
	Refreshes           int64
	RefreshFailures     int64
	LastRefreshed       time.Time
	LastRefreshDuration time.Duration
	LastError           string

	// Performance metrics
	HitRate float64
}

// cacheStats accumulates CacheStats for one cache.
type cacheStats struct {
	mu    sync.Mutex
	stats CacheStats
}

func (s *cacheStats) recordLookup(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hit {
		s.stats.Hits++
	} else {
		s.stats.Misses++
	}
}

func (s *cacheStats) recordRefresh(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.stats.RefreshFailures++
		s.stats.LastError = err.Error()
		return
	}

	s.stats.Refreshes++
	s.stats.LastRefreshed = time.Now()
	s.stats.LastRefreshDuration = duration
	s.stats.LastError = ""
}

// snapshot returns the current statistics with entries and hit rate filled in.
func (s *cacheStats) snapshot(entries int) CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Entries = int64(entries)

	totalRequests := stats.Hits + stats.Misses
	if totalRequests > 0 {
		stats.HitRate = float64(stats.Hits) / float64(totalRequests) * 100
	}

	return stats
}
