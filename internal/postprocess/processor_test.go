package postprocess

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"nakamura/internal/acl"
	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/event"
	"nakamura/internal/personal"
	"nakamura/internal/session"
)

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Post(_ context.Context, e event.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) topics(topic string) int {
	n := 0
	for _, e := range s.events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}

type fixture struct {
	factory   *session.MemoryFactory
	sess      *session.Session
	sink      *recordingSink
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provisioner, err := personal.NewProvisioner(acl.NameResolver{}, personal.Options{Logger: logger})
	if err != nil {
		t.Fatalf("failed to create provisioner: %v", err)
	}
	sink := &recordingSink{}

	f := session.NewMemoryFactory()
	sess, err := f.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Rollback() })

	return &fixture{
		factory:   f,
		sess:      sess,
		sink:      sink,
		processor: NewProcessor(provisioner, event.NewTranslator(sink, logger), logger),
	}
}

func TestProcess_CreateUser(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	carl := &authorizable.Authorizable{ID: "carl", Properties: map[string][]string{"email": {"carl@example.com"}}}
	if err := fx.factory.Users.Create(ctx, carl); err != nil {
		t.Fatalf("failed to create %s: %v", carl.ID, err)
	}

	changes := change.NewLog(change.OnCreated(authorizable.UserPrefix + "carl"))
	req := Request{ResourcePath: authorizable.UserPath, ActingUser: "admin"}
	if err := fx.processor.Process(ctx, fx.sess, req, carl, changes); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for _, path := range []string{
		personal.HomePath("carl", false),
		personal.PrivatePath("carl", false),
		personal.PublicPath("carl", false),
		personal.ProfilePath("carl", false),
	} {
		if ok, _ := fx.factory.Content.ItemExists(ctx, path); !ok {
			t.Errorf("expected %s to exist", path)
		}
	}

	applier := acl.NewApplier(fx.factory.ACL, fx.factory.Content)
	d, _ := applier.Evaluate(ctx, personal.PrivatePath("carl", false), acl.Anonymous, acl.Read)
	if d != acl.Deny {
		t.Errorf("anonymous read on private = %s, want deny", d)
	}

	if len(fx.sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(fx.sink.events), fx.sink.events)
	}
	e := fx.sink.events[0]
	if e.Topic != event.TopicCreated || e.TargetID != "carl" || e.ActingUser != "admin" {
		t.Errorf("unexpected event: %+v", e)
	}

	// A second request finds the home in place.
	nodes := len(fx.factory.Content.Paths())
	if err := fx.processor.Process(ctx, fx.sess, req, carl, change.NewLog()); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if got := len(fx.factory.Content.Paths()); got != nodes {
		t.Errorf("node count changed from %d to %d", nodes, got)
	}
}

func TestProcess_GroupModified(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	team := &authorizable.Authorizable{ID: "teamA", IsGroup: true, Properties: map[string][]string{"title": {"Team A"}}}
	if err := fx.factory.Users.Create(ctx, team); err != nil {
		t.Fatalf("failed to create %s: %v", team.ID, err)
	}

	changes := change.NewLog(change.OnModified(authorizable.GroupPrefix + "teamA"))
	req := Request{ResourcePath: authorizable.GroupPrefix + "teamA", ActingUser: "admin"}
	if err := fx.processor.Process(ctx, fx.sess, req, team, changes); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if n := fx.sink.topics(event.TopicGroupUpdated); n != 1 {
		t.Errorf("expected 1 group updated event, got %d", n)
	}
	if n := fx.sink.topics(event.TopicUpdated); n != 0 {
		t.Errorf("expected no authorizable updated events, got %d", n)
	}
	if ok, _ := fx.factory.Content.ItemExists(ctx, personal.ProfilePath("teamA", true)); !ok {
		t.Error("expected group profile to exist")
	}
}

func TestProcess_OtherPathIsIgnored(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	carl := &authorizable.Authorizable{ID: "carl"}
	changes := change.NewLog(change.OnCreated(authorizable.UserPrefix + "carl"))
	req := Request{ResourcePath: "/system/other", ActingUser: "admin"}
	if err := fx.processor.Process(ctx, fx.sess, req, carl, changes); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(fx.factory.Content.Paths()) != 0 {
		t.Errorf("expected no nodes, got %v", fx.factory.Content.Paths())
	}
	if len(fx.sink.events) != 0 {
		t.Errorf("expected no events, got %v", fx.sink.events)
	}
}

func TestBranchFor(t *testing.T) {
	tests := []struct {
		path    string
		isGroup bool
		ok      bool
	}{
		{authorizable.UserPath, false, true},
		{authorizable.GroupPath, true, true},
		{authorizable.UserPrefix + "carl", false, true},
		{authorizable.GroupPrefix + "teamA/members", true, true},
		{"/system/userManager", false, false},
	}

	for _, tt := range tests {
		isGroup, ok := branchFor(tt.path)
		if isGroup != tt.isGroup || ok != tt.ok {
			t.Errorf("branchFor(%q) = %v, %v, want %v, %v", tt.path, isGroup, ok, tt.isGroup, tt.ok)
		}
	}
}

func TestProcess_Delete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	carl := &authorizable.Authorizable{ID: "carl"}
	if err := fx.factory.Users.Create(ctx, carl); err != nil {
		t.Fatalf("failed to create %s: %v", carl.ID, err)
	}
	create := Request{ResourcePath: authorizable.UserPath, ActingUser: "admin"}
	if err := fx.processor.Process(ctx, fx.sess, create, carl, change.NewLog()); err != nil {
		t.Fatalf("Process(create) error = %v", err)
	}

	changes := change.NewLog(
		change.OnDeleted(authorizable.UserPrefix+"carl"),
		change.OnDeleted(authorizable.UserPrefix+"ghost"),
	)
	req := Request{ResourcePath: authorizable.UserPrefix + "carl", ActingUser: "admin"}
	if err := fx.processor.Process(ctx, fx.sess, req, nil, changes); err != nil {
		t.Fatalf("Process(delete) error = %v", err)
	}

	if ok, _ := fx.factory.Content.ItemExists(ctx, personal.HomePath("carl", false)); ok {
		t.Error("expected home to be removed")
	}
	entries := changes.Entries()
	if len(entries) != 3 || entries[2].Path() != personal.HomePath("carl", false) {
		t.Errorf("changes = %v", entries)
	}
	if n := fx.sink.topics(event.TopicDeleted); n != 1 {
		t.Errorf("expected 1 deleted event, got %d", n)
	}
}
