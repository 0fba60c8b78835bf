package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type entry struct {
	count int
	reset time.Time
}

// Memory is a mutex-guarded fixed-window counter map. Expired entries
// are swept opportunistically on a small fraction of calls; the sweep
// only bounds memory, correctness never depends on it.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	rnd     func() float64
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
		rnd:     rand.Float64,
	}
}

func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if m.rnd() < 0.01 {
		for k, e := range m.entries {
			if now.After(e.reset) {
				delete(m.entries, k)
			}
		}
	}

	e, ok := m.entries[key]
	if !ok || now.After(e.reset) {
		e = &entry{count: 1, reset: now.Add(window)}
		m.entries[key] = e
		return e.count, e.reset, nil
	}

	e.count++
	return e.count, e.reset, nil
}
