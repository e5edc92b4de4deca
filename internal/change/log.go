package change

// Log is the ordered, append-only list of modifications for one request.
// The zero value is ready to use. A Log is not safe for concurrent use.
type Log struct {
	entries []Modification
}

// NewLog returns a log holding the given modifications in order.
func NewLog(mods ...Modification) *Log {
	l := &Log{}
	for _, m := range mods {
		l.Append(m)
	}
	return l
}

// Append adds m to the end of the log.
func (l *Log) Append(m Modification) {
	l.entries = append(l.entries, m)
}

// Len returns the number of recorded modifications.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the recorded modifications in log order.
// Modifications appended after the call are not included.
func (l *Log) Entries() []Modification {
	out := make([]Modification, len(l.entries))
	copy(out, l.entries)
	return out
}

// OfKind returns the recorded modifications of the given kind in log order.
func (l *Log) OfKind(kind Kind) []Modification {
	var out []Modification
	for _, m := range l.entries {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
