// Package session binds the content, access-control and authorizable stores
// used by one request to a single unit of work.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"nakamura/internal/acl"
	"nakamura/internal/authorizable"
	"nakamura/internal/content"
)

// ErrDone is returned when committing a session that already ended.
var ErrDone = errors.New("session already committed or rolled back")

// Session is the storage view of one request.
type Session struct {
	Content content.Store
	ACL     acl.Store
	Users   authorizable.Store

	commit   func() error
	rollback func() error
	done     bool
}

// Commit makes the session's writes durable.
func (s *Session) Commit() error {
	if s.done {
		return ErrDone
	}
	s.done = true
	return s.commit()
}

// Rollback discards the session's writes. It is a no-op after Commit,
// so it can be deferred unconditionally.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.rollback()
}

// Factory opens sessions.
type Factory interface {
	Begin(ctx context.Context) (*Session, error)
}

// SQLFactory opens one database transaction per session.
type SQLFactory struct {
	db *sql.DB
}

// NewSQLFactory creates a factory backed by db.
func NewSQLFactory(db *sql.DB) *SQLFactory {
	return &SQLFactory{db: db}
}

// Begin starts a transaction and binds every datastore to it.
func (f *SQLFactory) Begin(ctx context.Context) (*Session, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{
		Content:  content.NewDatastore(tx),
		ACL:      acl.NewDatastore(tx),
		Users:    authorizable.NewDatastore(tx),
		commit:   tx.Commit,
		rollback: tx.Rollback,
	}, nil
}

// MemoryFactory hands out views of shared in-memory stores.
// Sessions are serialized: Begin blocks until the previous session ends.
// Writes are applied immediately and Rollback does not undo them.
type MemoryFactory struct {
	Content *content.MemStore
	ACL     *acl.MemStore
	Users   *authorizable.MemStore

	mu sync.Mutex
}

// NewMemoryFactory creates a factory over empty in-memory stores.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		Content: content.NewMemStore(),
		ACL:     acl.NewMemStore(),
		Users:   authorizable.NewMemStore(),
	}
}

// Begin waits for exclusive access and returns a session over the shared stores.
func (f *MemoryFactory) Begin(ctx context.Context) (*Session, error) {
	locked := make(chan struct{})
	go func() {
		f.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-ctx.Done():
		// Release the lock once the pending Lock succeeds.
		go func() {
			<-locked
			f.mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	release := func() error {
		f.mu.Unlock()
		return nil
	}
	return &Session{
		Content:  f.Content,
		ACL:      f.ACL,
		Users:    f.Users,
		commit:   release,
		rollback: release,
	}, nil
}
