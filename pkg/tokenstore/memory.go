package tokenstore

import (
	"sync"
	"time"
)

// Memory is an in-process Store. It is used for tests and for the
// "memory" token backend where nothing should outlive the process.
type Memory struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[Kind]entry
}

type entry struct {
	value     string
	expiresAt time.Time
}

// NewMemory returns an empty Memory store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an empty Memory store that evaluates expiry
// against now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		now:     now,
		entries: make(map[Kind]entry, len(Kinds)),
	}
}

func (m *Memory) Get(kind Kind) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[kind]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}

	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// Only drop the entry we looked at; a concurrent Set may have replaced it.
		if cur, ok := m.entries[kind]; ok && cur == e {
			delete(m.entries, kind)
		}
		m.mu.Unlock()
		return "", false
	}

	return e.value, true
}

func (m *Memory) Set(kind Kind, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[kind] = entry{
		value:     value,
		expiresAt: m.now().Add(effectiveTTL(kind, ttl)),
	}
}

func (m *Memory) Clear(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, kind)
}

func (m *Memory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

func (m *Memory) Has(kind Kind) bool {
	_, ok := m.Get(kind)
	return ok
}
