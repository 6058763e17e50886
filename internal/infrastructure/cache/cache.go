// Package cache holds the watch-detail cache and the close-session store.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/erp/salesrecon/internal/domain/sales"
)

// ErrSessionNotFound is returned when a close session is unknown or expired
var ErrSessionNotFound = errors.New("cache: close session not found")

// WatchDetailCache caches watch details by invoice picture-integer.
// A stored nil detail marks a lookup that failed and must not be retried
// until the cache is invalidated.
type WatchDetailCache interface {
	// Get returns found=false when nothing is cached for picint
	Get(ctx context.Context, picint string) (detail *sales.WatchDetail, found bool, err error)
	Set(ctx context.Context, picint string, detail *sales.WatchDetail) error
	// Invalidate drops every entry
	Invalidate(ctx context.Context) error
	Close() error
}

// SessionStore keeps close sessions between HTTP calls
type SessionStore interface {
	Save(ctx context.Context, snap sales.CloseSessionSnapshot) error
	Load(ctx context.Context, id string) (*sales.CloseSessionSnapshot, error)
	Delete(ctx context.Context, id string) error
	// Claim takes the exclusive right to change session id. It returns
	// false when another caller holds the claim. An unreleased claim lapses
	// after the store's TTL.
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	Close() error
}

const defaultCleanupInterval = 30 * time.Second
