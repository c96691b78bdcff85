package revocation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRegistry is a process-local registry for single-node deployments
// and tests. Entries expire lazily on read and via a periodic sweep.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	reason    string
	expiresAt time.Time
}

// NewMemoryRegistry constructs an empty registry and starts its sweeper.
func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	go r.sweep(time.Minute)
	return r
}

// Blacklist records the jti for ttl.
func (r *MemoryRegistry) Blacklist(_ context.Context, jti, reason string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("revocation: jti is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	r.mu.Lock()
	r.entries[jti] = memoryEntry{reason: reason, expiresAt: r.now().Add(ttl)}
	r.mu.Unlock()
	return nil
}

// IsBlacklisted reports whether the jti has a live entry.
func (r *MemoryRegistry) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	r.mu.RLock()
	entry, ok := r.entries[jti]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if r.now().After(entry.expiresAt) {
		r.mu.Lock()
		delete(r.entries, jti)
		r.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (r *MemoryRegistry) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		now := r.now()
		r.mu.Lock()
		for jti, entry := range r.entries {
			if now.After(entry.expiresAt) {
				delete(r.entries, jti)
			}
		}
		r.mu.Unlock()
	}
}
