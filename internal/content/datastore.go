package content

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DBTX is the interface for database operations.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Datastore implements Store on PostgreSQL.
type Datastore struct {
	db DBTX
}

// NewDatastore creates a new content datastore.
func NewDatastore(db DBTX) *Datastore {
	return &Datastore{db: db}
}

var _ Store = (*Datastore)(nil)

// ItemExists checks for a node at path or a property addressed by path.
func (ds *Datastore) ItemExists(ctx context.Context, path string) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM nodes WHERE path = $1)
			OR EXISTS(SELECT 1 FROM node_properties WHERE node_path = $2 AND name = $3)`

	var exists bool
	err := ds.db.QueryRowContext(ctx, query, path, Parent(path), LastElement(path)).Scan(&exists)
	return exists, err
}

// GetNode loads a node and its properties.
func (ds *Datastore) GetNode(ctx context.Context, path string) (*Node, error) {
	query := `SELECT path, created_at FROM nodes WHERE path = $1`

	node := &Node{Properties: make(map[string]*Property)}
	err := ds.db.QueryRowContext(ctx, query, path).Scan(&node.Path, &node.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	propQuery := `
		SELECT name, vals, multiple, protected
		FROM node_properties
		WHERE node_path = $1
		ORDER BY name`

	rows, err := ds.db.QueryContext(ctx, propQuery, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		p := &Property{NodePath: path}
		if err := rows.Scan(&p.Name, pq.Array(&p.Values), &p.Multiple, &p.Protected); err != nil {
			return nil, err
		}
		node.Properties[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return node, nil
}

// CreateNode inserts the node and its missing ancestors, then loads it.
func (ds *Datastore) CreateNode(ctx context.Context, path string) (*Node, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO nodes (path, parent_path, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO NOTHING`

	now := time.Now()
	for _, p := range append(Ancestors(path), path) {
		if _, err := ds.db.ExecContext(ctx, query, p, Parent(p), now); err != nil {
			return nil, err
		}
	}

	return ds.GetNode(ctx, path)
}

// SetProperty upserts an unprotected property.
func (ds *Datastore) SetProperty(ctx context.Context, nodePath, name string, value Value) (*Property, error) {
	query := `
		INSERT INTO node_properties (node_path, name, vals, multiple, protected, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (node_path, name)
		DO UPDATE SET vals = EXCLUDED.vals, multiple = EXCLUDED.multiple, updated_at = EXCLUDED.updated_at
		WHERE node_properties.protected = FALSE`

	values := value.Values
	if values == nil {
		values = []string{}
	}

	result, err := ds.db.ExecContext(ctx, query, nodePath, name, pq.Array(values), value.Multiple, time.Now())
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrProtected
	}

	return &Property{
		NodePath: nodePath,
		Name:     name,
		Values:   append([]string(nil), values...),
		Multiple: value.Multiple,
	}, nil
}

// RemoveProperty deletes an unprotected property.
func (ds *Datastore) RemoveProperty(ctx context.Context, nodePath, name string) error {
	query := `DELETE FROM node_properties WHERE node_path = $1 AND name = $2 AND protected = FALSE`

	result, err := ds.db.ExecContext(ctx, query, nodePath, name)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveNode deletes the node and every node below it.
// Properties go with their nodes through ON DELETE CASCADE.
func (ds *Datastore) RemoveNode(ctx context.Context, path string) error {
	query := `DELETE FROM nodes WHERE path = $1 OR path LIKE $2`

	result, err := ds.db.ExecContext(ctx, query, path, LikePrefix(path))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MakeReferenceable stores a protected uuid on the node unless one exists.
func (ds *Datastore) MakeReferenceable(ctx context.Context, path string) (string, error) {
	insert := `
		INSERT INTO node_properties (node_path, name, vals, multiple, protected, updated_at)
		VALUES ($1, $2, $3, FALSE, TRUE, $4)
		ON CONFLICT (node_path, name) DO NOTHING`

	id := uuid.New().String()
	if _, err := ds.db.ExecContext(ctx, insert, path, UUIDProperty, pq.Array([]string{id}), time.Now()); err != nil {
		return "", err
	}

	query := `SELECT vals FROM node_properties WHERE node_path = $1 AND name = $2`

	var vals []string
	if err := ds.db.QueryRowContext(ctx, query, path, UUIDProperty).Scan(pq.Array(&vals)); err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", ErrNotFound
	}
	return vals[0], nil
}

// FindByProperty searches the subtree below root.
func (ds *Datastore) FindByProperty(ctx context.Context, root, name, value string) ([]string, error) {
	query := `
		SELECT node_path
		FROM node_properties
		WHERE name = $1 AND $2 = ANY(vals) AND node_path LIKE $3
		ORDER BY node_path`

	rows, err := ds.db.QueryContext(ctx, query, name, value, LikePrefix(root))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paths, nil
}
