package event

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nakamura/internal/authorizable"
	"nakamura/internal/change"
)

// operations maps a modification kind to the event operation it reports.
var operations = map[change.Kind]Operation{
	change.Create: OperationCreate,
	change.Modify: OperationUpdate,
	change.Delete: OperationDelete,
	change.Move:   OperationUpdate,
	change.Copy:   OperationUpdate,
}

// OperationFor returns the operation reported for a modification kind.
func OperationFor(kind change.Kind) (Operation, bool) {
	op, ok := operations[kind]
	return op, ok
}

// Translator publishes the modifications of a request as lifecycle events.
type Translator struct {
	sink   Sink
	logger *slog.Logger
}

// NewTranslator creates a translator that posts to sink.
func NewTranslator(sink Sink, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Translator{sink: sink, logger: logger}
}

// Publish walks changes in order and posts one event per qualifying
// modification. Delivery failures are logged and never returned.
func (t *Translator) Publish(ctx context.Context, changes *change.Log, actingUser, targetID string) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("event translation aborted", "target", targetID, "panic", r)
		}
	}()
	if changes == nil {
		t.logger.Debug("no changes to publish", "target", targetID)
		return
	}

	for _, m := range changes.Entries() {
		e, ok := t.translate(m, actingUser, targetID)
		if !ok {
			continue
		}
		if err := t.post(ctx, e); err != nil {
			t.logger.Warn("failed to post event",
				"topic", e.Topic,
				"target", e.TargetID,
				"modification", m.String(),
				"error", err,
			)
		}
	}
}

func (t *Translator) translate(m change.Modification, actingUser, targetID string) (Event, bool) {
	path := m.Path()

	if authorizable.IsGroupChange(path) {
		if m.Kind != change.Modify {
			t.logger.Debug("ignoring group modification", "kind", m.Kind.String(), "path", path)
			return Event{}, false
		}
		return NewGroupEvent(actingUser, m), true
	}

	if targetID == "" || !strings.HasSuffix(path, targetID) {
		return Event{}, false
	}
	op, ok := OperationFor(m.Kind)
	if !ok {
		return Event{}, false
	}
	return NewAuthorizableEvent(op, actingUser, targetID, m), true
}

func (t *Translator) post(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return t.sink.Post(ctx, e)
}
