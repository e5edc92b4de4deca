package content

import "context"

// Store is the storage backend for the node tree.
// Implementations must make ItemExists consistent with CreateNode within a
// single session so callers can check existence before creating.
type Store interface {
	// ItemExists reports whether a node, or a property addressed by its
	// item path, exists at path.
	ItemExists(ctx context.Context, path string) (bool, error)

	// GetNode returns a snapshot of the node at path, or ErrNotFound.
	GetNode(ctx context.Context, path string) (*Node, error)

	// CreateNode creates the node at path and any missing ancestors.
	// An existing node is returned unchanged.
	CreateNode(ctx context.Context, path string) (*Node, error)

	// SetProperty writes a property, replacing any unprotected value.
	// Returns ErrProtected when the existing property is protected.
	SetProperty(ctx context.Context, nodePath, name string, value Value) (*Property, error)

	// RemoveProperty deletes an unprotected property, or returns ErrNotFound.
	RemoveProperty(ctx context.Context, nodePath, name string) error

	// RemoveNode deletes the node at path with its whole subtree,
	// or returns ErrNotFound.
	RemoveNode(ctx context.Context, path string) error

	// MakeReferenceable assigns a protected UUIDProperty to the node if it
	// does not carry one yet and returns the node's identifier.
	MakeReferenceable(ctx context.Context, path string) (string, error)

	// FindByProperty returns the paths of nodes below root whose named
	// property contains value, sorted by path.
	FindByProperty(ctx context.Context, root, name, value string) ([]string, error)
}
