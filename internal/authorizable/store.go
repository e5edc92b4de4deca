package authorizable

import (
	"context"
	"errors"
	"fmt"
)

// Store persists authorizables.
type Store interface {
	// Create inserts a new authorizable or returns ErrAlreadyExists.
	Create(ctx context.Context, a *Authorizable) error

	// Get loads an authorizable with its properties and members,
	// or returns ErrNotFound.
	Get(ctx context.Context, id string) (*Authorizable, error)

	// SetProperty replaces the values of one property.
	SetProperty(ctx context.Context, id, name string, values []string) error

	// RemoveProperty deletes one property and reports whether it existed.
	RemoveProperty(ctx context.Context, id, name string) (bool, error)

	// AddMember adds memberID to a group. Adding an existing member is a no-op.
	AddMember(ctx context.Context, groupID, memberID string) error

	// RemoveMember removes memberID from a group and reports whether it was a member.
	RemoveMember(ctx context.Context, groupID, memberID string) (bool, error)

	// Delete removes an authorizable or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Resolve returns the authorizable addressed by a user-manager path.
// The kind encoded in the path must match the stored authorizable.
func Resolve(ctx context.Context, s Store, path string) (*Authorizable, error) {
	id, isGroup, _, ok := ParsePath(path)
	if !ok {
		return nil, ErrNotFound
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if a.IsGroup != isGroup {
		return nil, ErrNotFound
	}
	return a, nil
}
