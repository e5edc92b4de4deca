// Package acl applies and evaluates access-control entries on content paths.
package acl

import (
	"errors"
	"strings"
	"time"
)

// Domain errors.
var (
	ErrPathNotFound     = errors.New("access control target path does not exist")
	ErrInvalidPrincipal = errors.New("invalid principal name")
)

// Capability is a named permission that can be allowed or denied.
type Capability string

const (
	Read               Capability = "read"
	Write              Capability = "write"
	AddChildNodes      Capability = "add-child-nodes"
	RemoveChildNodes   Capability = "remove-child-nodes"
	ModifyProperties   Capability = "modify-properties"
	RemoveNode         Capability = "remove-node"
	NodeTypeManagement Capability = "node-type-management"
)

// Capabilities lists every capability in the order full control grants them.
var Capabilities = []Capability{
	Read,
	Write,
	RemoveChildNodes,
	ModifyProperties,
	AddChildNodes,
	RemoveNode,
	NodeTypeManagement,
}

// Grant allows or denies one capability.
type Grant struct {
	Capability Capability
	Allow      bool
}

// Granted returns a grant allowing c.
func Granted(c Capability) Grant {
	return Grant{Capability: c, Allow: true}
}

// Denied returns a grant denying c.
func Denied(c Capability) Grant {
	return Grant{Capability: c, Allow: false}
}

// Entry is a stored access-control entry. Entries are keyed by
// (Path, Principal, Capability); the last write wins.
type Entry struct {
	Path       string
	Principal  string
	Capability Capability
	Allow      bool
	UpdatedAt  time.Time
}

// Principal identifies who an entry applies to.
type Principal struct {
	Name string
}

// Well-known principal names.
const (
	AnonymousName = "anonymous"
	EveryoneName  = "everyone"
)

// Anonymous and Everyone are the well-known principals.
var (
	Anonymous = Principal{Name: AnonymousName}
	Everyone  = Principal{Name: EveryoneName}
)

// Resolver maps a principal name to a Principal.
type Resolver interface {
	ResolvePrincipal(name string) (Principal, error)
}

// NameResolver resolves any well-formed name to a principal of that name.
type NameResolver struct{}

// ResolvePrincipal rejects empty names and names containing a slash.
func (NameResolver) ResolvePrincipal(name string) (Principal, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return Principal{}, ErrInvalidPrincipal
	}
	return Principal{Name: name}, nil
}

// Decision is the outcome of an access check.
type Decision int

const (
	// Deny means the capability is not permitted.
	Deny Decision = iota

	// Allow means the capability is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}
