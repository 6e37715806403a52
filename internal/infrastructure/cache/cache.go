package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache stores opaque byte values under string keys with a per-entry TTL.
type Cache interface {
	// Get returns ok=false on a miss or an expired entry.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Memory is a process-local Cache. A background janitor evicts expired
// entries whether or not they are read again; call Stop to end it.
type Memory struct {
	items    *ttlcache.Cache[string, []byte]
	stopOnce sync.Once
}

func NewMemory() *Memory {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Memory{items: items}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set stores value; a non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.items.Set(key, value, ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len counts the entries currently held, expired or not.
func (m *Memory) Len() int {
	return m.items.Len()
}

// Stop ends the janitor. Safe to call more than once.
func (m *Memory) Stop() {
	m.stopOnce.Do(m.items.Stop)
}
