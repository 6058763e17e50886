package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e entry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// ttlMap is a mutex-guarded map whose entries expire. A background loop
// removes expired entries until close is called.
type ttlMap[T any] struct {
	mu        sync.RWMutex
	entries   map[string]entry[T]
	ttl       time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newTTLMap[T any](ttl, cleanupInterval time.Duration) *ttlMap[T] {
	m := &ttlMap[T]{
		entries:  make(map[string]entry[T]),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	m.wg.Add(1)
	go m.cleanupLoop(cleanupInterval)
	return m
}

func (m *ttlMap[T]) get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (m *ttlMap[T]) set(key string, value T) {
	e := entry[T]{value: value}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// setIfAbsent stores value unless a live entry exists for key
func (m *ttlMap[T]) setIfAbsent(key string, value T) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !e.expired(now) {
		return false
	}
	e := entry[T]{value: value}
	if m.ttl > 0 {
		e.expiresAt = now.Add(m.ttl)
	}
	m.entries[key] = e
	return true
}

func (m *ttlMap[T]) delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *ttlMap[T]) clear() {
	m.mu.Lock()
	m.entries = make(map[string]entry[T])
	m.mu.Unlock()
}

func (m *ttlMap[T]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *ttlMap[T]) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *ttlMap[T]) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}

func (m *ttlMap[T]) close() {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
	})
}
