package asyncevents

//go:generate mockgen -destination=mock/mock_registry.go -package=mock -source=registry.go

import (
	"sync"

	"github.com/google/uuid"
)

// Entry is a registered listener
type Entry struct {
	// ID identifies the entry for removal
	ID string
	// Listener is what the emitter invokes; for once entries this is the wrapped listener
	Listener Listener
	// Once marks entries that remove themselves before their first invocation
	Once bool
}

// Registry stores the ordered listener sequence of each event key.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Listeners returns a copy of the sequence registered for key, or nil.
	Listeners(key string) []Entry
	// Add appends the entry to the sequence for key, or inserts it at the front if prepend is set.
	Add(key string, entry Entry, prepend bool)
	// Remove deletes the entry with the given id and reports whether it was present.
	Remove(key string, id string) bool
}

// IDGenerator produces listener identities
type IDGenerator interface {
	New() string
}

type uuidGenerator struct{}

func (uuidGenerator) New() string {
	return uuid.NewString()
}

// MemoryRegistry is the default Registry, an in-memory map of ordered slices
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string][]Entry),
	}
}

// Listeners returns a copy of the entries registered for key
func (r *MemoryRegistry) Listeners(key string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[key]
	if len(entries) == 0 {
		return nil
	}
	snapshot := make([]Entry, len(entries))
	copy(snapshot, entries)
	return snapshot
}

// Add registers an entry at the back of the sequence, or the front when prepend is set
func (r *MemoryRegistry) Add(key string, entry Entry, prepend bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prepend {
		entries := make([]Entry, 0, len(r.entries[key])+1)
		entries = append(entries, entry)
		r.entries[key] = append(entries, r.entries[key]...)
		return
	}
	r.entries[key] = append(r.entries[key], entry)
}

// Remove deletes the entry with the given id
func (r *MemoryRegistry) Remove(key string, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries[key]
	for i, entry := range entries {
		if entry.ID != id {
			continue
		}
		if len(entries) == 1 {
			delete(r.entries, key)
			return true
		}
		remaining := make([]Entry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		r.entries[key] = append(remaining, entries[i+1:]...)
		return true
	}
	return false
}

// Count returns the number of entries registered for key
func (r *MemoryRegistry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key])
}

// Keys returns the keys that have at least one entry
func (r *MemoryRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

// RemoveAll drops every entry for key and returns how many were removed
func (r *MemoryRegistry) RemoveAll(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries[key])
	delete(r.entries, key)
	return n
}
