package signal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by client id.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a disconnected client.
func (rl *RateLimiter) Forget(id string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
