package event

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"sync"

	"nakamura/internal/change"
	"nakamura/internal/content"
)

// DefaultListLimit caps ListByTarget when no limit is given.
const DefaultListLimit = 100

// Log is a Sink that also answers queries about past events.
type Log interface {
	Sink
	ListByTarget(ctx context.Context, targetID string, limit int) ([]Event, error)
}

// Store appends events to the authorizable_events table.
type Store struct {
	db content.DBTX
}

// NewStore creates a new event store.
func NewStore(db content.DBTX) *Store {
	return &Store{db: db}
}

var _ Log = (*Store)(nil)

// Post inserts the event. Reposting an event with the same ID is a no-op.
func (s *Store) Post(ctx context.Context, e Event) error {
	query := `
		INSERT INTO authorizable_events
			(id, topic, operation, acting_user, target_id, kind, source, destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Topic, string(e.Operation), e.ActingUser, e.TargetID,
		e.Modification.Kind.String(), e.Modification.Source, e.Modification.Destination,
		e.CreatedAt,
	)
	return err
}

// ListByTarget returns the most recent events about targetID, oldest first.
func (s *Store) ListByTarget(ctx context.Context, targetID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, topic, operation, acting_user, target_id, kind, source, destination, created_at
		FROM (
			SELECT * FROM authorizable_events
			WHERE target_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, targetID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []Event
	for rows.Next() {
		var e Event
		var op, kind string
		var dest sql.NullString
		if err := rows.Scan(&e.ID, &e.Topic, &op, &e.ActingUser, &e.TargetID, &kind, &e.Modification.Source, &dest, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Operation = Operation(op)
		e.Modification.Destination = dest.String
		if e.Modification.Kind, err = change.ParseKind(kind); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MemLog keeps events in memory.
type MemLog struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemLog creates an empty in-memory event log.
func NewMemLog() *MemLog {
	return &MemLog{}
}

var _ Log = (*MemLog)(nil)

func (l *MemLog) Post(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *MemLog) ListByTarget(_ context.Context, targetID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.TargetID == targetID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Recorder returns a bus handler that appends every event to log.
// Failures are reported to logger.
func Recorder(log Sink, logger *slog.Logger) Handler {
	return func(ctx context.Context, e Event) {
		if err := log.Post(ctx, e); err != nil {
			logger.Warn("failed to record event", "topic", e.Topic, "target", e.TargetID, "error", err)
		}
	}
}
