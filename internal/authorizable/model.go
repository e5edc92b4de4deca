// Package authorizable stores users and groups and maps them to their
// user-manager paths.
package authorizable

import (
	"errors"
	"sort"
	"time"

	"nakamura/internal/acl"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("authorizable not found")
	ErrAlreadyExists = errors.New("authorizable already exists")
	ErrInvalidID     = errors.New("invalid authorizable ID")
	ErrNotGroup      = errors.New("authorizable is not a group")
)

// PrivatePropertiesName lists property names that must stay off the public profile.
const PrivatePropertiesName = "privateProperties"

// Authorizable is a user or group identity record.
// A property holding exactly one value is single-valued.
type Authorizable struct {
	ID         string
	IsGroup    bool
	Properties map[string][]string
	Members    []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PropertyNames returns the property names in sorted order.
func (a *Authorizable) PropertyNames() []string {
	names := make([]string, 0, len(a.Properties))
	for name := range a.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property returns the values of the named property.
func (a *Authorizable) Property(name string) ([]string, bool) {
	v, ok := a.Properties[name]
	return v, ok
}

// Principal returns the access-control principal of the authorizable.
func (a *Authorizable) Principal() acl.Principal {
	return acl.Principal{Name: a.ID}
}

// Path returns the user-manager path of the authorizable.
func (a *Authorizable) Path() string {
	return PathFor(a.ID, a.IsGroup)
}

// Kind returns "group" or "user".
func (a *Authorizable) Kind() string {
	if a.IsGroup {
		return "group"
	}
	return "user"
}
