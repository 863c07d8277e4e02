package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per key inside a rolling window. Good
// enough for per-instance browse throttling; it is not shared across
// replicas.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	slots  map[string]windowSlot
}

type windowSlot struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		slots:  make(map[string]windowSlot),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok || now.After(slot.reset) {
		l.slots[key] = windowSlot{count: 1, reset: now.Add(l.window)}
		l.sweepLocked(now)
		return true
	}

	if slot.count >= l.limit {
		return false
	}
	slot.count++
	l.slots[key] = slot
	return true
}

func (l *fixedWindowLimiter) sweepLocked(now time.Time) {
	for key, slot := range l.slots {
		if now.After(slot.reset) {
			delete(l.slots, key)
		}
	}
}
