package session

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// Eviction controls how long idle sessions are kept. The zero value keeps
// sessions until they are cleared.
type Eviction struct {
	TTL             time.Duration // idle lifetime; 0 means never expire
	CleanupInterval time.Duration // how often expired sessions are purged
}

func (e Eviction) expiration() time.Duration {
	if e.TTL <= 0 {
		return cache.NoExpiration
	}
	return e.TTL
}

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore returns an in-process store with the given eviction policy.
func NewMemoryStore(ev Eviction) *MemoryStore {
	cleanup := ev.CleanupInterval
	if ev.TTL > 0 && cleanup <= 0 {
		cleanup = ev.TTL
	}
	return &MemoryStore{c: cache.New(ev.expiration(), cleanup)}
}

func (m *MemoryStore) Create(_ context.Context, id string) (lead.Profile, error) {
	p := lead.NewProfile(id)
	m.c.Set(id, p.Clone(), cache.DefaultExpiration)
	return p, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (lead.Profile, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return lead.Profile{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return v.(lead.Profile).Clone(), nil
}

// Put stores p and restarts its idle timer.
func (m *MemoryStore) Put(_ context.Context, p lead.Profile) error {
	m.c.Set(p.SessionID, p.Clone(), cache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.c.Delete(id)
	return nil
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.c.ItemCount()
}
