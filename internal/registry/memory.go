package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry for tests and single-shot runs.
type MemoryRegistry struct {
	mu      sync.Mutex
	seq     int64
	entries map[string]memoryEntry
}

type memoryEntry struct {
	Entry
	seq int64
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]memoryEntry)}
}

func (r *MemoryRegistry) Exists(_ context.Context, fingerprint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[fingerprint]
	return ok, nil
}

func (r *MemoryRegistry) Put(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.entries[entry.Fingerprint] = memoryEntry{Entry: entry, seq: r.seq}
	return nil
}

func (r *MemoryRegistry) Claim(_ context.Context, entry Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Fingerprint]; ok {
		return false, nil
	}
	r.seq++
	r.entries[entry.Fingerprint] = memoryEntry{Entry: entry, seq: r.seq}
	return true, nil
}

func (r *MemoryRegistry) Delete(_ context.Context, fingerprint, storagePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[fingerprint]
	if !ok || e.StoragePath != storagePath {
		return ErrEntryNotFound
	}
	delete(r.entries, fingerprint)
	return nil
}

// LookupFingerprintByPath returns the most recently registered fingerprint
// at storagePath.
func (r *MemoryRegistry) LookupFingerprintByPath(_ context.Context, storagePath string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best memoryEntry
	for _, e := range r.entries {
		if e.StoragePath == storagePath && e.seq > best.seq {
			best = e
		}
	}
	return best.Fingerprint, best.seq > 0, nil
}

func (r *MemoryRegistry) ListByPath(_ context.Context, storagePath string) ([]Entry, error) {
	return r.filter(func(e Entry) bool { return e.StoragePath == storagePath }), nil
}

func (r *MemoryRegistry) List(_ context.Context, owner string) ([]Entry, error) {
	return r.filter(func(e Entry) bool { return owner == "" || e.Owner == owner }), nil
}

func (r *MemoryRegistry) filter(keep func(Entry) bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if keep(e.Entry) {
			out = append(out, e.Entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

func (r *MemoryRegistry) Close() error { return nil }
