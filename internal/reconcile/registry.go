package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PollKey uniquely identifies one active watch.
type PollKey struct {
	OrderID       uint
	BrokerOrderID string
}

func (k PollKey) String() string {
	return fmt.Sprintf("%d-%s", k.OrderID, k.BrokerOrderID)
}

type watchEntry struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// Registry is the single source of truth for which orders are currently being
// watched. It enforces at most one watch per polling key and owns each
// watch's cancel handle. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	watches map[PollKey]watchEntry
}

func NewRegistry() *Registry {
	return &Registry{
		watches: make(map[PollKey]watchEntry),
	}
}

// TryStart registers a watch for the key. Returns false without side effects
// if a watch for the key is already active. The insert is atomic with respect
// to concurrent TryStart/Stop calls.
func (r *Registry) TryStart(key PollKey, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watches[key]; exists {
		return false
	}
	r.watches[key] = watchEntry{cancel: cancel, startedAt: time.Now()}
	return true
}

// Stop cancels the watch for the key, if any, and removes its bookkeeping.
// Idempotent: unknown keys are a no-op.
func (r *Registry) Stop(key PollKey) {
	r.mu.Lock()
	entry, exists := r.watches[key]
	if exists {
		delete(r.watches, key)
	}
	r.mu.Unlock()

	if exists {
		entry.cancel()
	}
}

// ListActive returns the keys of all currently registered watches.
func (r *Registry) ListActive() []PollKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]PollKey, 0, len(r.watches))
	for key := range r.watches {
		keys = append(keys, key)
	}
	return keys
}

// StopAll cancels every registered watch. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := make([]watchEntry, 0, len(r.watches))
	for key, entry := range r.watches {
		entries = append(entries, entry)
		delete(r.watches, key)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
}
