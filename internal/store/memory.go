package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	rec       *Record
	expiresAt time.Time
}

// Memory keeps records in process. Expired entries are hidden on read and
// dropped by a background sweep until Close.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*entry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	m := &Memory{
		items: make(map[string]*entry),
		ttl:   ttl,
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go m.cleanup(cleanupInterval(ttl))
	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

func (m *Memory) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[rec.ID] = &entry{rec: rec, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[id]
	if !ok || m.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.rec, nil
}

// Len reports the number of entries including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *Memory) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, id)
		}
	}
}
