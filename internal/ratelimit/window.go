package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a fixed-window check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter is the wait until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return wait.Truncate(time.Second) + time.Second
}

// WindowLimiter counts requests per key in fixed windows.
type WindowLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryWindow is a process-local WindowLimiter.
type MemoryWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]*windowCount
	now    func() time.Time
}

type windowCount struct {
	n     int
	reset time.Time
}

// NewMemoryWindow allows limit requests per key per window.
func NewMemoryWindow(limit int, window time.Duration) *MemoryWindow {
	return &MemoryWindow{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Allow implements WindowLimiter.
func (m *MemoryWindow) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counts[key]
	if !ok || !now.Before(c.reset) {
		c = &windowCount{reset: now.Add(m.window)}
		m.counts[key] = c
	}
	c.n++
	return decide(c.n, m.limit, c.reset), nil
}

// Cleanup drops expired windows.
func (m *MemoryWindow) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, c := range m.counts {
		if !now.Before(c.reset) {
			delete(m.counts, k)
			n++
		}
	}
	return n
}

func decide(count, limit int, reset time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Limit: limit, Remaining: remaining, Reset: reset}
}
