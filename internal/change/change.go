// Package change records the modifications made while handling a single
// user-management request.
package change

import "fmt"

// Kind is the kind of a recorded modification.
type Kind int

const (
	Create Kind = iota + 1
	Modify
	Delete
	Move
	Copy
)

var kindNames = map[Kind]string{
	Create: "create",
	Modify: "modify",
	Delete: "delete",
	Move:   "move",
	Copy:   "copy",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses the name produced by String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown modification kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Modification records one change to a path.
// Move and Copy set both Source and Destination; every other kind sets Source only.
type Modification struct {
	Kind        Kind   `json:"kind"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

// Path returns the destination of the modification, or its source when no
// destination was recorded.
func (m Modification) Path() string {
	if m.Destination != "" {
		return m.Destination
	}
	return m.Source
}

func (m Modification) String() string {
	if m.Destination != "" {
		return fmt.Sprintf("%s %s -> %s", m.Kind, m.Source, m.Destination)
	}
	return fmt.Sprintf("%s %s", m.Kind, m.Source)
}

// OnCreated records the creation of path.
func OnCreated(path string) Modification {
	return Modification{Kind: Create, Source: path}
}

// OnModified records a change to path.
func OnModified(path string) Modification {
	return Modification{Kind: Modify, Source: path}
}

// OnDeleted records the removal of path.
func OnDeleted(path string) Modification {
	return Modification{Kind: Delete, Source: path}
}

// OnMoved records a move from source to destination.
func OnMoved(source, destination string) Modification {
	return Modification{Kind: Move, Source: source, Destination: destination}
}

// OnCopied records a copy from source to destination.
func OnCopied(source, destination string) Modification {
	return Modification{Kind: Copy, Source: source, Destination: destination}
}
