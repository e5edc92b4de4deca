// Package content stores the hierarchical node tree that backs homes,
// profiles and messages.
package content

import (
	"errors"
	"time"
)

// Domain errors returned by every Store implementation.
var (
	ErrNotFound    = errors.New("item not found")
	ErrProtected   = errors.New("property is protected")
	ErrInvalidPath = errors.New("invalid content path")
)

// UUIDProperty holds the identifier assigned by MakeReferenceable.
const UUIDProperty = "jcr:uuid"

// Node is a snapshot of a stored node and its properties.
type Node struct {
	Path       string
	CreatedAt  time.Time
	Properties map[string]*Property
}

// HasProperty reports whether the node carries the named property.
func (n *Node) HasProperty(name string) bool {
	_, ok := n.Properties[name]
	return ok
}

// Property returns the named property.
func (n *Node) Property(name string) (*Property, bool) {
	p, ok := n.Properties[name]
	return p, ok
}

// Property is a named, single- or multi-valued string property of a node.
type Property struct {
	NodePath  string
	Name      string
	Values    []string
	Multiple  bool
	Protected bool
}

// Path returns the item path of the property.
func (p *Property) Path() string {
	return Join(p.NodePath, p.Name)
}

// String returns the first value, or "" when the property is empty.
func (p *Property) String() string {
	if len(p.Values) == 0 {
		return ""
	}
	return p.Values[0]
}

// Value is the value written by SetProperty.
type Value struct {
	Values   []string
	Multiple bool
}

// Single returns a single-valued Value.
func Single(s string) Value {
	return Value{Values: []string{s}}
}

// Multi returns a multi-valued Value. A multi-valued property keeps its
// multiplicity even when it holds zero or one value.
func Multi(values ...string) Value {
	v := make([]string, len(values))
	copy(v, values)
	return Value{Values: v, Multiple: true}
}

func (p *Property) clone() *Property {
	c := *p
	c.Values = append([]string(nil), p.Values...)
	return &c
}
