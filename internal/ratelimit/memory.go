package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

type debounceEntry struct {
	last      time.Time
	expiresAt time.Time
}

// Memory is an in-process Backend. It is exact within one process and knows
// nothing about other instances.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	debounces map[string]*debounceEntry
	now       func() time.Time
	ttl       time.Duration
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty limiter. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		windows:   make(map[string]*window),
		debounces: make(map[string]*debounceEntry),
		now:       now,
		ttl:       DefaultDebounceTTL,
	}
}

// WithDebounceTTL sets how long debounce records live.
func (m *Memory) WithDebounceTTL(ttl time.Duration) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
	return m
}

func (m *Memory) Allow(_ context.Context, actorID, action string, max int, win time.Duration) (bool, error) {
	key := rateKey(actorID, action)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.windows[key] = &window{count: 1, resetAt: now.Add(win)}
		return true, nil
	}
	if w.count >= max {
		return false, nil
	}
	w.count++
	return true, nil
}

func (m *Memory) ShouldDebounce(_ context.Context, actorID, playerID, field string, minInterval time.Duration) (bool, error) {
	key := debounceKey(actorID, playerID, field)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.debounces[key]
	if ok && now.Before(e.expiresAt) && now.Sub(e.last) < minInterval {
		return true, nil
	}
	m.debounces[key] = &debounceEntry{last: now, expiresAt: now.Add(m.ttl)}
	return false, nil
}

func (m *Memory) Sweep(_ context.Context, limit int) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for k, w := range m.windows {
		if deleted >= limit {
			return deleted, nil
		}
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
			deleted++
		}
	}
	for k, e := range m.debounces {
		if deleted >= limit {
			return deleted, nil
		}
		if !now.Before(e.expiresAt) {
			delete(m.debounces, k)
			deleted++
		}
	}
	return deleted, nil
}

func rateKey(actorID, action string) string {
	return "ratelimit:" + actorID + ":" + action
}

func debounceKey(actorID, playerID, field string) string {
	return "debounce:" + actorID + ":" + playerID + ":" + field
}
