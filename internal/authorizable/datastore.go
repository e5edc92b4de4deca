package authorizable

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"nakamura/internal/content"
)

// Datastore implements Store on PostgreSQL.
type Datastore struct {
	db content.DBTX
}

// NewDatastore creates a new authorizable datastore.
func NewDatastore(db content.DBTX) *Datastore {
	return &Datastore{db: db}
}

var _ Store = (*Datastore)(nil)

// Create inserts the authorizable row followed by its properties.
func (ds *Datastore) Create(ctx context.Context, a *Authorizable) error {
	now := time.Now()

	query := `
		INSERT INTO authorizables (id, is_group, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	result, err := ds.db.ExecContext(ctx, query, a.ID, a.IsGroup, now, now)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	a.CreatedAt, a.UpdatedAt = now, now

	for _, name := range a.PropertyNames() {
		if err := ds.SetProperty(ctx, a.ID, name, a.Properties[name]); err != nil {
			return err
		}
	}
	for _, m := range a.Members {
		if err := ds.AddMember(ctx, a.ID, m); err != nil {
			return err
		}
	}
	return nil
}

// Get loads an authorizable, its properties and its members.
func (ds *Datastore) Get(ctx context.Context, id string) (*Authorizable, error) {
	query := `
		SELECT id, is_group, created_at, updated_at
		FROM authorizables WHERE id = $1`

	a := &Authorizable{Properties: make(map[string][]string)}
	err := ds.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.IsGroup, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	propQuery := `
		SELECT name, vals FROM authorizable_properties
		WHERE authorizable_id = $1 ORDER BY name`

	rows, err := ds.db.QueryContext(ctx, propQuery, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var name string
		var vals []string
		if err := rows.Scan(&name, pq.Array(&vals)); err != nil {
			return nil, err
		}
		a.Properties[name] = vals
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if a.IsGroup {
		members, err := ds.listMembers(ctx, id)
		if err != nil {
			return nil, err
		}
		a.Members = members
	}

	return a, nil
}

func (ds *Datastore) listMembers(ctx context.Context, groupID string) ([]string, error) {
	query := `SELECT member_id FROM group_members WHERE group_id = $1 ORDER BY member_id`

	rows, err := ds.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetProperty upserts one property.
func (ds *Datastore) SetProperty(ctx context.Context, id, name string, values []string) error {
	query := `
		INSERT INTO authorizable_properties (authorizable_id, name, vals)
		VALUES ($1, $2, $3)
		ON CONFLICT (authorizable_id, name)
		DO UPDATE SET vals = EXCLUDED.vals`

	if values == nil {
		values = []string{}
	}
	_, err := ds.db.ExecContext(ctx, query, id, name, pq.Array(values))
	return err
}

// RemoveProperty deletes one property.
func (ds *Datastore) RemoveProperty(ctx context.Context, id, name string) (bool, error) {
	query := `DELETE FROM authorizable_properties WHERE authorizable_id = $1 AND name = $2`

	result, err := ds.db.ExecContext(ctx, query, id, name)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// AddMember inserts a membership row.
func (ds *Datastore) AddMember(ctx context.Context, groupID, memberID string) error {
	query := `
		INSERT INTO group_members (group_id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, member_id) DO NOTHING`

	_, err := ds.db.ExecContext(ctx, query, groupID, memberID)
	return err
}

// RemoveMember deletes a membership row.
func (ds *Datastore) RemoveMember(ctx context.Context, groupID, memberID string) (bool, error) {
	query := `DELETE FROM group_members WHERE group_id = $1 AND member_id = $2`

	result, err := ds.db.ExecContext(ctx, query, groupID, memberID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Delete removes the authorizable; properties and memberships cascade.
func (ds *Datastore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM authorizables WHERE id = $1`

	result, err := ds.db.ExecContext(ctx, query, id)
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
