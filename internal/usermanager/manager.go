// Package usermanager creates, updates and deletes users and groups and
// hands every request to the post-processor within the same session.
package usermanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/postprocess"
	"nakamura/internal/session"
)

// Domain errors returned by the Manager.
var (
	ErrInvalidID     = authorizable.ErrInvalidID
	ErrAlreadyExists = authorizable.ErrAlreadyExists
	ErrNotFound      = authorizable.ErrNotFound
	ErrInvalidMember = errors.New("invalid group member")
)

// Manager handles user-manager requests.
type Manager struct {
	sessions  session.Factory
	processor *postprocess.Processor
	logger    *slog.Logger
}

// NewManager creates a new user manager.
func NewManager(sessions session.Factory, processor *postprocess.Processor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{sessions: sessions, processor: processor, logger: logger}
}

// CreateRequest describes a new user or group.
type CreateRequest struct {
	ID         string
	Properties map[string][]string
	// Members is only honoured for groups.
	Members []string
}

// UpdateRequest sets and removes properties of an existing authorizable.
type UpdateRequest struct {
	Set    map[string][]string
	Remove []string
}

// Result is the outcome of a user-manager request.
type Result struct {
	Authorizable *authorizable.Authorizable
	Changes      []change.Modification
}

// CreateUser creates a user and provisions its home.
func (m *Manager) CreateUser(ctx context.Context, actingUser string, req CreateRequest) (*Result, error) {
	return m.create(ctx, actingUser, req, false)
}

// CreateGroup creates a group with optional initial members and provisions its home.
func (m *Manager) CreateGroup(ctx context.Context, actingUser string, req CreateRequest) (*Result, error) {
	return m.create(ctx, actingUser, req, true)
}

func (m *Manager) create(ctx context.Context, actingUser string, req CreateRequest, isGroup bool) (*Result, error) {
	if err := authorizable.ValidateID(req.ID); err != nil {
		return nil, err
	}

	resourcePath := authorizable.UserPath
	if isGroup {
		resourcePath = authorizable.GroupPath
	}
	changes := change.NewLog()

	var created *authorizable.Authorizable
	err := m.withSession(ctx, func(sess *session.Session) error {
		// Members are checked before anything is written so a rejected
		// request leaves no record behind on stores without rollback.
		if isGroup {
			if err := checkMembers(ctx, sess, req.ID, req.Members); err != nil {
				return err
			}
		}

		a := &authorizable.Authorizable{
			ID:         req.ID,
			IsGroup:    isGroup,
			Properties: copyProperties(req.Properties),
		}
		if err := sess.Users.Create(ctx, a); err != nil {
			return err
		}
		changes.Append(change.OnCreated(a.Path()))

		if isGroup && len(req.Members) > 0 {
			if err := m.addMembers(ctx, sess, a.ID, req.Members, changes); err != nil {
				return err
			}
		}

		a, err := sess.Users.Get(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", req.ID, err)
		}

		pr := postprocess.Request{ResourcePath: resourcePath, ActingUser: actingUser}
		if err := m.processor.Process(ctx, sess, pr, a, changes); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("created authorizable", "kind", created.Kind(), "id", created.ID, "acting_user", actingUser)
	return &Result{Authorizable: created, Changes: changes.Entries()}, nil
}

// UpdateUser changes the properties of a user.
func (m *Manager) UpdateUser(ctx context.Context, actingUser, id string, req UpdateRequest) (*Result, error) {
	return m.update(ctx, actingUser, id, false, req)
}

// UpdateGroup changes the properties of a group.
func (m *Manager) UpdateGroup(ctx context.Context, actingUser, id string, req UpdateRequest) (*Result, error) {
	return m.update(ctx, actingUser, id, true, req)
}

func (m *Manager) update(ctx context.Context, actingUser, id string, isGroup bool, req UpdateRequest) (*Result, error) {
	if err := authorizable.ValidateID(id); err != nil {
		return nil, err
	}
	path := authorizable.PathFor(id, isGroup)
	changes := change.NewLog()

	var updated *authorizable.Authorizable
	err := m.withSession(ctx, func(sess *session.Session) error {
		if _, err := authorizable.Resolve(ctx, sess.Users, path); err != nil {
			return err
		}
		changes.Append(change.OnModified(path))

		for _, name := range sortedNames(req.Set) {
			if err := sess.Users.SetProperty(ctx, id, name, req.Set[name]); err != nil {
				return fmt.Errorf("failed to set %s on %s: %w", name, id, err)
			}
			changes.Append(change.OnModified(authorizable.PropertyPath(id, isGroup, name)))
		}
		for _, name := range req.Remove {
			removed, err := sess.Users.RemoveProperty(ctx, id, name)
			if err != nil {
				return fmt.Errorf("failed to remove %s from %s: %w", name, id, err)
			}
			if removed {
				changes.Append(change.OnDeleted(authorizable.PropertyPath(id, isGroup, name)))
			}
		}

		a, err := sess.Users.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", id, err)
		}

		pr := postprocess.Request{ResourcePath: path, ActingUser: actingUser}
		if err := m.processor.Process(ctx, sess, pr, a, changes); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Authorizable: updated, Changes: changes.Entries()}, nil
}

// AddMembers adds existing users or groups to a group.
func (m *Manager) AddMembers(ctx context.Context, actingUser, groupID string, members []string) (*Result, error) {
	return m.changeMembers(ctx, actingUser, groupID, func(sess *session.Session, changes *change.Log) error {
		return m.addMembers(ctx, sess, groupID, members, changes)
	})
}

// RemoveMembers removes members from a group. Unknown members are ignored.
func (m *Manager) RemoveMembers(ctx context.Context, actingUser, groupID string, members []string) (*Result, error) {
	return m.changeMembers(ctx, actingUser, groupID, func(sess *session.Session, changes *change.Log) error {
		changed := false
		for _, member := range members {
			removed, err := sess.Users.RemoveMember(ctx, groupID, member)
			if err != nil {
				return fmt.Errorf("failed to remove %s from %s: %w", member, groupID, err)
			}
			changed = changed || removed
		}
		if changed {
			changes.Append(change.OnModified(authorizable.MembersPath(groupID)))
		}
		return nil
	})
}

func (m *Manager) changeMembers(ctx context.Context, actingUser, groupID string, apply func(*session.Session, *change.Log) error) (*Result, error) {
	if err := authorizable.ValidateID(groupID); err != nil {
		return nil, err
	}
	path := authorizable.PathFor(groupID, true)
	changes := change.NewLog()

	var group *authorizable.Authorizable
	err := m.withSession(ctx, func(sess *session.Session) error {
		if _, err := authorizable.Resolve(ctx, sess.Users, path); err != nil {
			return err
		}
		if err := apply(sess, changes); err != nil {
			return err
		}

		g, err := sess.Users.Get(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", groupID, err)
		}

		pr := postprocess.Request{ResourcePath: authorizable.MembersPath(groupID), ActingUser: actingUser}
		if err := m.processor.Process(ctx, sess, pr, g, changes); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Authorizable: group, Changes: changes.Entries()}, nil
}

// checkMembers verifies that every member exists and is not the group itself.
func checkMembers(ctx context.Context, sess *session.Session, groupID string, members []string) error {
	for _, member := range members {
		if member == groupID {
			return fmt.Errorf("%w: a group can not contain itself", ErrInvalidMember)
		}
		if _, err := sess.Users.Get(ctx, member); err != nil {
			if errors.Is(err, authorizable.ErrNotFound) {
				return fmt.Errorf("%w: %s does not exist", ErrInvalidMember, member)
			}
			return fmt.Errorf("failed to load member %s: %w", member, err)
		}
	}
	return nil
}

func (m *Manager) addMembers(ctx context.Context, sess *session.Session, groupID string, members []string, changes *change.Log) error {
	if err := checkMembers(ctx, sess, groupID, members); err != nil {
		return err
	}
	for _, member := range members {
		if err := sess.Users.AddMember(ctx, groupID, member); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", member, groupID, err)
		}
	}
	if len(members) > 0 {
		changes.Append(change.OnModified(authorizable.MembersPath(groupID)))
	}
	return nil
}

// Delete removes a user or group together with its home.
func (m *Manager) Delete(ctx context.Context, actingUser, id string, isGroup bool) (*Result, error) {
	if err := authorizable.ValidateID(id); err != nil {
		return nil, err
	}
	path := authorizable.PathFor(id, isGroup)
	changes := change.NewLog(change.OnDeleted(path))

	err := m.withSession(ctx, func(sess *session.Session) error {
		if _, err := authorizable.Resolve(ctx, sess.Users, path); err != nil {
			return err
		}

		// The post-processor resolves the deleted authorizable, so it runs
		// before the record is removed.
		pr := postprocess.Request{ResourcePath: path, ActingUser: actingUser}
		if err := m.processor.Process(ctx, sess, pr, nil, changes); err != nil {
			return err
		}
		return sess.Users.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("deleted authorizable", "path", path, "acting_user", actingUser)
	return &Result{Changes: changes.Entries()}, nil
}

// Get returns a user or group.
func (m *Manager) Get(ctx context.Context, id string, isGroup bool) (*authorizable.Authorizable, error) {
	if err := authorizable.ValidateID(id); err != nil {
		return nil, err
	}
	var a *authorizable.Authorizable
	err := m.withSession(ctx, func(sess *session.Session) error {
		var err error
		a, err = authorizable.Resolve(ctx, sess.Users, authorizable.PathFor(id, isGroup))
		return err
	})
	return a, err
}

func (m *Manager) withSession(ctx context.Context, fn func(*session.Session) error) error {
	sess, err := m.sessions.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := sess.Rollback(); err != nil {
			m.logger.Warn("failed to roll back session", "error", err)
		}
	}()

	if err := fn(sess); err != nil {
		return err
	}
	if err := sess.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func copyProperties(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string{}, v...)
	}
	return out
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
