// Package registry records which document fingerprints are currently indexed.
//
// An entry exists for a fingerprint iff that content is present in its
// owner's index table. Entries are keyed by fingerprint and looked up by
// storage path on delete.
package registry

import (
	"context"
	"errors"
)

// ErrEntryNotFound is returned by Delete when no entry matches.
// Callers deleting idempotently treat it as success.
var ErrEntryNotFound = errors.New("registry entry not found")

// Entry is one registered document.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	Owner       string `json:"owner"`
	StoragePath string `json:"storage_path"`
}

// Registry is the durable dedup registry.
//
// Errors other than ErrEntryNotFound carry ERR_506_REGISTRY_WRITE or
// ERR_507_REGISTRY_READ codes.
type Registry interface {
	// Exists reports whether fingerprint is registered.
	Exists(ctx context.Context, fingerprint string) (bool, error)

	// Put writes entry, replacing any entry with the same fingerprint.
	Put(ctx context.Context, entry Entry) error

	// Claim writes entry only if its fingerprint is not registered.
	// It reports whether this call created the entry.
	Claim(ctx context.Context, entry Entry) (bool, error)

	// Delete removes the entry matching both fingerprint and storagePath.
	Delete(ctx context.Context, fingerprint, storagePath string) error

	// LookupFingerprintByPath returns the fingerprint registered for
	// storagePath. found is false when nothing is registered there.
	LookupFingerprintByPath(ctx context.Context, storagePath string) (fingerprint string, found bool, err error)

	// ListByPath returns every entry registered at storagePath. More than
	// one exists when an object was overwritten with different content.
	ListByPath(ctx context.Context, storagePath string) ([]Entry, error)

	// List returns every entry for owner, or all entries when owner is empty.
	List(ctx context.Context, owner string) ([]Entry, error)

	// Close releases resources.
	Close() error
}
