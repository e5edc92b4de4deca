package acl

import (
	"context"
	"fmt"

	"nakamura/internal/content"
)

// Applier writes and evaluates access-control entries for existing content.
type Applier struct {
	entries Store
	nodes   content.Store
}

// NewApplier creates an applier over the given entry and node stores.
// Both stores should belong to the same session.
func NewApplier(entries Store, nodes content.Store) *Applier {
	return &Applier{entries: entries, nodes: nodes}
}

// ApplyGrants upserts one entry per grant, in order, for principal on path.
// The path must already exist.
func (a *Applier) ApplyGrants(ctx context.Context, path string, principal Principal, grants ...Grant) error {
	exists, err := a.nodes.ItemExists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	for _, g := range grants {
		entry := Entry{
			Path:       path,
			Principal:  principal.Name,
			Capability: g.Capability,
			Allow:      g.Allow,
		}
		if err := a.entries.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("failed to apply %s on %s for %s: %w", g.Capability, path, principal.Name, err)
		}
	}
	return nil
}

// Evaluate decides whether principal holds capability on path.
//
// The walk starts at path and moves towards the root. At each level an entry
// for the principal itself wins over an entry for Everyone; the first level
// carrying either decides. Without any matching entry the answer is Deny.
func (a *Applier) Evaluate(ctx context.Context, path string, principal Principal, capability Capability) (Decision, error) {
	for p := path; p != "" && p != "/"; p = content.Parent(p) {
		entries, err := a.entries.EntriesFor(ctx, p)
		if err != nil {
			return Deny, fmt.Errorf("failed to read entries for %s: %w", p, err)
		}

		var fallback *Entry
		for i := range entries {
			e := entries[i]
			if e.Capability != capability {
				continue
			}
			if e.Principal == principal.Name {
				return decision(e.Allow), nil
			}
			if e.Principal == EveryoneName {
				fallback = &entries[i]
			}
		}
		if fallback != nil {
			return decision(fallback.Allow), nil
		}
	}
	return Deny, nil
}

func decision(allow bool) Decision {
	if allow {
		return Allow
	}
	return Deny
}
