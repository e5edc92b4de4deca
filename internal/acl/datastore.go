package acl

import (
	"context"
	"database/sql"
	"time"

	"nakamura/internal/content"
)

// Datastore implements Store on PostgreSQL.
type Datastore struct {
	db content.DBTX
}

// NewDatastore creates a new access-control datastore.
func NewDatastore(db content.DBTX) *Datastore {
	return &Datastore{db: db}
}

var _ Store = (*Datastore)(nil)

// Upsert inserts or replaces an access-control entry.
func (ds *Datastore) Upsert(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO access_entries (path, principal, capability, allow, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path, principal, capability)
		DO UPDATE SET allow = EXCLUDED.allow, updated_at = EXCLUDED.updated_at`

	_, err := ds.db.ExecContext(ctx, query,
		entry.Path, entry.Principal, string(entry.Capability), entry.Allow, time.Now(),
	)
	return err
}

// EntriesFor lists the entries on a single path.
func (ds *Datastore) EntriesFor(ctx context.Context, path string) ([]Entry, error) {
	query := `
		SELECT path, principal, capability, allow, updated_at
		FROM access_entries
		WHERE path = $1
		ORDER BY principal, capability`

	rows, err := ds.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanEntries(rows)
}

// RemoveEntries deletes the entries of a subtree.
func (ds *Datastore) RemoveEntries(ctx context.Context, path string) error {
	query := `DELETE FROM access_entries WHERE path = $1 OR path LIKE $2`

	_, err := ds.db.ExecContext(ctx, query, path, content.LikePrefix(path))
	return err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var capability string
		if err := rows.Scan(&e.Path, &e.Principal, &capability, &e.Allow, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Capability = Capability(capability)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
