package personal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"nakamura/internal/acl"
	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/content"
	"nakamura/internal/session"
)

// Profile properties written by the provisioner.
const (
	ResourceTypeProperty = "sling:resourceType"
	UserIDProperty       = "rep:userId"

	DefaultUserProfileType  = "sakai/user-profile"
	DefaultGroupProfileType = "sakai/group-profile"
)

// DefaultReservedPrefixes are property name prefixes never copied to a profile.
var DefaultReservedPrefixes = []string{"jcr:", "rep:"}

// Options configures a Provisioner. Zero fields take their defaults.
type Options struct {
	ReservedPrefixes []string
	UserProfileType  string
	GroupProfileType string
	Logger           *slog.Logger
}

// Provisioner creates home layouts and keeps profiles in sync with their
// authorizables.
type Provisioner struct {
	anonymous acl.Principal
	everyone  acl.Principal

	reserved         []string
	userProfileType  string
	groupProfileType string
	logger           *slog.Logger
}

// NewProvisioner resolves the anonymous and everyone principals once and
// returns a provisioner using them for every home.
func NewProvisioner(resolver acl.Resolver, opts Options) (*Provisioner, error) {
	anonymous, err := resolver.ResolvePrincipal(acl.AnonymousName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve anonymous principal: %w", err)
	}
	everyone, err := resolver.ResolvePrincipal(acl.EveryoneName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve everyone principal: %w", err)
	}

	p := &Provisioner{
		anonymous:        anonymous,
		everyone:         everyone,
		reserved:         opts.ReservedPrefixes,
		userProfileType:  opts.UserProfileType,
		groupProfileType: opts.GroupProfileType,
		logger:           opts.Logger,
	}
	if p.reserved == nil {
		p.reserved = DefaultReservedPrefixes
	}
	if p.userProfileType == "" {
		p.userProfileType = DefaultUserProfileType
	}
	if p.groupProfileType == "" {
		p.groupProfileType = DefaultGroupProfileType
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p, nil
}

// EnsureHome creates the home, private, public and profile nodes of a and
// synchronizes the profile. An existing home is returned untouched.
// A failing step aborts the call and leaves earlier steps in place; callers
// that need atomicity roll back the session.
func (p *Provisioner) EnsureHome(ctx context.Context, sess *session.Session, a *authorizable.Authorizable, isGroup bool, changes *change.Log) (*content.Node, error) {
	homePath := HomePath(a.ID, isGroup)

	exists, err := sess.Content.ItemExists(ctx, homePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check home %s: %w", homePath, err)
	}
	if exists {
		return sess.Content.GetNode(ctx, homePath)
	}

	applier := acl.NewApplier(sess.ACL, sess.Content)
	owner := a.Principal()

	if _, err := sess.Content.CreateNode(ctx, homePath); err != nil {
		return nil, fmt.Errorf("failed to create home %s: %w", homePath, err)
	}
	if err := p.grantShared(ctx, applier, homePath, owner); err != nil {
		return nil, err
	}

	if err := p.ensurePrivate(ctx, sess, applier, a.ID, isGroup, owner); err != nil {
		return nil, err
	}
	if err := p.ensurePublic(ctx, sess, applier, a.ID, isGroup, owner); err != nil {
		return nil, err
	}

	profile, err := p.ensureProfile(ctx, sess, applier, a, isGroup)
	if err != nil {
		return nil, err
	}

	if err := p.SyncProfile(ctx, sess.Content, profile, a, changes); err != nil {
		return nil, err
	}

	home, err := sess.Content.GetNode(ctx, homePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load home %s: %w", homePath, err)
	}
	return home, nil
}

func (p *Provisioner) ensurePrivate(ctx context.Context, sess *session.Session, applier *acl.Applier, id string, isGroup bool, owner acl.Principal) error {
	path := PrivatePath(id, isGroup)
	created, err := createIfAbsent(ctx, sess.Content, path)
	if err != nil || !created {
		return err
	}

	if err := applier.ApplyGrants(ctx, path, owner, acl.FullControl()...); err != nil {
		return err
	}
	if err := applier.ApplyGrants(ctx, path, p.anonymous, acl.NoAccess()...); err != nil {
		return err
	}
	return applier.ApplyGrants(ctx, path, p.everyone, acl.NoAccess()...)
}

func (p *Provisioner) ensurePublic(ctx context.Context, sess *session.Session, applier *acl.Applier, id string, isGroup bool, owner acl.Principal) error {
	path := PublicPath(id, isGroup)
	created, err := createIfAbsent(ctx, sess.Content, path)
	if err != nil || !created {
		return err
	}
	return p.grantShared(ctx, applier, path, owner)
}

func (p *Provisioner) ensureProfile(ctx context.Context, sess *session.Session, applier *acl.Applier, a *authorizable.Authorizable, isGroup bool) (*content.Node, error) {
	path := ProfilePath(a.ID, isGroup)

	exists, err := sess.Content.ItemExists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check profile %s: %w", path, err)
	}
	if exists {
		return sess.Content.GetNode(ctx, path)
	}

	p.logger.Info("creating profile node", "path", path, "authorizable", a.ID)

	if _, err := sess.Content.CreateNode(ctx, path); err != nil {
		return nil, fmt.Errorf("failed to create profile %s: %w", path, err)
	}
	if _, err := sess.Content.SetProperty(ctx, path, ResourceTypeProperty, content.Single(p.profileType(isGroup))); err != nil {
		return nil, fmt.Errorf("failed to stamp profile %s: %w", path, err)
	}
	if _, err := sess.Content.MakeReferenceable(ctx, path); err != nil {
		return nil, fmt.Errorf("failed to make profile %s referenceable: %w", path, err)
	}

	// The owner may edit everything next to the profile.
	if err := applier.ApplyGrants(ctx, content.Parent(path), a.Principal(), acl.FullControl()...); err != nil {
		return nil, err
	}

	return sess.Content.GetNode(ctx, path)
}

// grantShared gives the owner full control and everybody else read access.
func (p *Provisioner) grantShared(ctx context.Context, applier *acl.Applier, path string, owner acl.Principal) error {
	if err := applier.ApplyGrants(ctx, path, owner, acl.FullControl()...); err != nil {
		return err
	}
	if err := applier.ApplyGrants(ctx, path, p.anonymous, acl.ReadOnly()...); err != nil {
		return err
	}
	return applier.ApplyGrants(ctx, path, p.everyone, acl.ReadOnly()...)
}

func (p *Provisioner) profileType(isGroup bool) string {
	if isGroup {
		return p.groupProfileType
	}
	return p.userProfileType
}

// SyncProfile copies the public properties of a onto profile and records
// every write in changes. Properties deleted earlier in the request are
// removed from the profile first. A nil profile is left alone.
func (p *Provisioner) SyncProfile(ctx context.Context, store content.Store, profile *content.Node, a *authorizable.Authorizable, changes *change.Log) error {
	if profile == nil {
		return nil
	}

	for _, m := range changes.OfKind(change.Delete) {
		name := content.LastElement(m.Path())
		if name == a.ID {
			continue
		}
		prop, ok := profile.Property(name)
		if !ok || prop.Protected {
			continue
		}
		if err := store.RemoveProperty(ctx, profile.Path, name); err != nil && !errors.Is(err, content.ErrNotFound) {
			return fmt.Errorf("failed to remove profile property %s: %w", prop.Path(), err)
		}
		delete(profile.Properties, name)
		changes.Append(change.OnDeleted(prop.Path()))
	}

	denied := p.privateNames(profile, a)
	p.logger.Debug("syncing profile", "path", profile.Path, "private", sortedKeys(denied))

	if !profile.HasProperty(UserIDProperty) {
		prop, err := store.SetProperty(ctx, profile.Path, UserIDProperty, content.Single(a.ID))
		if err != nil {
			return fmt.Errorf("failed to set %s on %s: %w", UserIDProperty, profile.Path, err)
		}
		profile.Properties[UserIDProperty] = prop
		changes.Append(change.OnModified(prop.Path()))
	}

	for _, name := range a.PropertyNames() {
		if p.isReserved(name) {
			p.logger.Debug("skipping reserved property", "name", name, "authorizable", a.ID)
			continue
		}
		if _, ok := denied[name]; ok {
			continue
		}
		if existing, ok := profile.Property(name); ok && existing.Protected {
			continue
		}

		values := a.Properties[name]
		value := content.Multi(values...)
		if len(values) == 1 {
			value = content.Single(values[0])
		}

		prop, err := store.SetProperty(ctx, profile.Path, name, value)
		if err != nil {
			if errors.Is(err, content.ErrProtected) {
				continue
			}
			return fmt.Errorf("failed to copy %s to %s: %w", name, profile.Path, err)
		}
		profile.Properties[name] = prop
		changes.Append(change.OnModified(prop.Path()))
	}
	return nil
}

// privateNames returns the union of the private property lists held by the
// profile and by the authorizable.
func (p *Provisioner) privateNames(profile *content.Node, a *authorizable.Authorizable) map[string]struct{} {
	denied := make(map[string]struct{})
	if prop, ok := profile.Property(authorizable.PrivatePropertiesName); ok {
		for _, v := range prop.Values {
			denied[v] = struct{}{}
		}
	}
	if values, ok := a.Property(authorizable.PrivatePropertiesName); ok {
		for _, v := range values {
			denied[v] = struct{}{}
		}
	}
	return denied
}

func (p *Provisioner) isReserved(name string) bool {
	for _, prefix := range p.reserved {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DeleteHome removes the home subtree of a together with its access entries.
// It returns the removed home path and whether anything was removed.
func (p *Provisioner) DeleteHome(ctx context.Context, sess *session.Session, a *authorizable.Authorizable) (string, bool, error) {
	homePath := HomePath(a.ID, a.IsGroup)

	exists, err := sess.Content.ItemExists(ctx, homePath)
	if err != nil {
		return homePath, false, fmt.Errorf("failed to check home %s: %w", homePath, err)
	}
	if !exists {
		return homePath, false, nil
	}

	if err := sess.Content.RemoveNode(ctx, homePath); err != nil {
		return homePath, false, fmt.Errorf("failed to remove home %s: %w", homePath, err)
	}
	if err := sess.ACL.RemoveEntries(ctx, homePath); err != nil {
		return homePath, false, fmt.Errorf("failed to remove access entries of %s: %w", homePath, err)
	}
	return homePath, true, nil
}

func createIfAbsent(ctx context.Context, store content.Store, path string) (bool, error) {
	exists, err := store.ItemExists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", path, err)
	}
	if exists {
		return false, nil
	}
	if _, err := store.CreateNode(ctx, path); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return true, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
