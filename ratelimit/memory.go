package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps a sliding log of accepted attempts per key.
type Memory struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	log   map[string][]time.Time
	calls int
}

func NewMemory(opts Options) *Memory {
	return &Memory{opts: opts, now: time.Now, log: make(map[string][]time.Time)}
}

// WithClock replaces the time source. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%1024 == 0 {
		m.sweep(now)
	}

	attempts := m.prune(key, now)
	res := Result{Limit: m.opts.Attempts}
	if len(attempts) >= m.opts.Attempts {
		res.RetryAfter = attempts[0].Add(m.opts.Window).Sub(now)
		return res, nil
	}

	m.log[key] = append(attempts, now)
	res.Allowed = true
	res.Remaining = m.opts.Attempts - len(attempts) - 1
	return res, nil
}

// prune drops attempts that fell out of the window ending at now.
func (m *Memory) prune(key string, now time.Time) []time.Time {
	attempts := m.log[key]
	cutoff := now.Add(-m.opts.Window)
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	attempts = attempts[i:]
	if len(attempts) == 0 {
		delete(m.log, key)
		return nil
	}
	m.log[key] = attempts
	return attempts
}

func (m *Memory) sweep(now time.Time) {
	for key := range m.log {
		m.prune(key, now)
	}
}
