package acl

import "context"

// Store persists access-control entries.
type Store interface {
	// Upsert writes an entry, replacing the one with the same
	// (path, principal, capability).
	Upsert(ctx context.Context, entry Entry) error

	// EntriesFor returns the entries stored on exactly path, ordered by
	// principal then capability.
	EntriesFor(ctx context.Context, path string) ([]Entry, error)

	// RemoveEntries deletes the entries on path and every path below it.
	RemoveEntries(ctx context.Context, path string) error
}
