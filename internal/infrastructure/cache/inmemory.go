package cache

import (
	"context"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
)

// InMemoryWatchDetailCache is a process-local WatchDetailCache
type InMemoryWatchDetailCache struct {
	m *ttlMap[*sales.WatchDetail]
}

// NewInMemoryWatchDetailCache creates a cache whose entries live for ttl (0 = until invalidated)
func NewInMemoryWatchDetailCache(ttl time.Duration) *InMemoryWatchDetailCache {
	return &InMemoryWatchDetailCache{m: newTTLMap[*sales.WatchDetail](ttl, defaultCleanupInterval)}
}

func (c *InMemoryWatchDetailCache) Get(_ context.Context, picint string) (*sales.WatchDetail, bool, error) {
	d, ok := c.m.get(picint)
	return d, ok, nil
}

func (c *InMemoryWatchDetailCache) Set(_ context.Context, picint string, detail *sales.WatchDetail) error {
	c.m.set(picint, detail)
	return nil
}

func (c *InMemoryWatchDetailCache) Invalidate(context.Context) error {
	c.m.clear()
	return nil
}

// Len returns the number of entries, expired ones included until the next cleanup
func (c *InMemoryWatchDetailCache) Len() int {
	return c.m.len()
}

func (c *InMemoryWatchDetailCache) Close() error {
	c.m.close()
	return nil
}

var _ WatchDetailCache = (*InMemoryWatchDetailCache)(nil)

// InMemorySessionStore is a process-local SessionStore. Sessions expire
// after ttl of inactivity.
type InMemorySessionStore struct {
	m      *ttlMap[sales.CloseSessionSnapshot]
	claims *ttlMap[struct{}]
}

// NewInMemorySessionStore creates a session store
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	return &InMemorySessionStore{
		m:      newTTLMap[sales.CloseSessionSnapshot](ttl, defaultCleanupInterval),
		claims: newTTLMap[struct{}](ttl, defaultCleanupInterval),
	}
}

func (s *InMemorySessionStore) Save(_ context.Context, snap sales.CloseSessionSnapshot) error {
	s.m.set(snap.ID, snap)
	return nil
}

func (s *InMemorySessionStore) Load(_ context.Context, id string) (*sales.CloseSessionSnapshot, error) {
	snap, ok := s.m.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &snap, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.m.delete(id)
	return nil
}

func (s *InMemorySessionStore) Claim(_ context.Context, id string) (bool, error) {
	return s.claims.setIfAbsent(id, struct{}{}), nil
}

func (s *InMemorySessionStore) Release(_ context.Context, id string) error {
	s.claims.delete(id)
	return nil
}

func (s *InMemorySessionStore) Close() error {
	s.m.close()
	s.claims.close()
	return nil
}

var _ SessionStore = (*InMemorySessionStore)(nil)
