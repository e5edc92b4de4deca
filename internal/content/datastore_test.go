package content

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDatastore_ItemExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM nodes WHERE path = \$1\)`).
		WithArgs("/a/b/email", "/a/b", "email").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.ItemExists(context.Background(), "/a/b/email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected item to exist")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_GetNode(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT path, created_at FROM nodes WHERE path = \$1`).
		WithArgs("/a").
		WillReturnRows(sqlmock.NewRows([]string{"path", "created_at"}).AddRow("/a", now))
	mock.ExpectQuery(`SELECT name, vals, multiple, protected\s+FROM node_properties`).
		WithArgs("/a").
		WillReturnRows(sqlmock.NewRows([]string{"name", "vals", "multiple", "protected"}).
			AddRow("email", "{carl@example.com}", false, false).
			AddRow("tags", "{a,b}", true, false))

	node, err := ds.GetNode(context.Background(), "/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	email, ok := node.Property("email")
	if !ok || email.String() != "carl@example.com" || email.Multiple {
		t.Errorf("unexpected email property: %+v", email)
	}
	tags, ok := node.Property("tags")
	if !ok || len(tags.Values) != 2 || !tags.Multiple {
		t.Errorf("unexpected tags property: %+v", tags)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_GetNode_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectQuery(`SELECT path, created_at FROM nodes WHERE path = \$1`).
		WithArgs("/missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetNode(context.Background(), "/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_CreateNode_InsertsAncestors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)
	now := time.Now()

	for _, p := range []struct{ path, parent string }{
		{"/_user", "/"},
		{"/_user/c", "/_user"},
		{"/_user/c/ca", "/_user/c"},
		{"/_user/c/ca/carl", "/_user/c/ca"},
	} {
		mock.ExpectExec(`INSERT INTO nodes`).
			WithArgs(p.path, p.parent, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectQuery(`SELECT path, created_at FROM nodes WHERE path = \$1`).
		WithArgs("/_user/c/ca/carl").
		WillReturnRows(sqlmock.NewRows([]string{"path", "created_at"}).AddRow("/_user/c/ca/carl", now))
	mock.ExpectQuery(`SELECT name, vals, multiple, protected`).
		WithArgs("/_user/c/ca/carl").
		WillReturnRows(sqlmock.NewRows([]string{"name", "vals", "multiple", "protected"}))

	node, err := ds.CreateNode(context.Background(), "/_user/c/ca/carl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Path != "/_user/c/ca/carl" {
		t.Errorf("unexpected path %q", node.Path)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_CreateNode_InvalidPath(t *testing.T) {
	ds := NewDatastore(nil)

	if _, err := ds.CreateNode(context.Background(), "relative/path"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestDatastore_SetProperty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectExec(`INSERT INTO node_properties`).
		WithArgs("/a", "email", sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p, err := ds.SetProperty(context.Background(), "/a", "email", Single("carl@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Path() != "/a/email" {
		t.Errorf("expected path /a/email, got %q", p.Path())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_SetProperty_Protected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectExec(`INSERT INTO node_properties`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = ds.SetProperty(context.Background(), "/a", UUIDProperty, Single("x"))
	if !errors.Is(err, ErrProtected) {
		t.Errorf("expected ErrProtected, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_RemoveProperty_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectExec(`DELETE FROM node_properties`).
		WithArgs("/a", "phone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := ds.RemoveProperty(context.Background(), "/a", "phone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_RemoveNode_EscapesPrefix(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectExec(`DELETE FROM nodes WHERE path = \$1 OR path LIKE \$2`).
		WithArgs("/_user/c/ca/carl", `/\_user/c/ca/carl/%`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := ds.RemoveNode(context.Background(), "/_user/c/ca/carl"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_MakeReferenceable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectExec(`INSERT INTO node_properties`).
		WithArgs("/a", UUIDProperty, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT vals FROM node_properties`).
		WithArgs("/a", UUIDProperty).
		WillReturnRows(sqlmock.NewRows([]string{"vals"}).AddRow("{existing-id}"))

	id, err := ds.MakeReferenceable(context.Background(), "/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "existing-id" {
		t.Errorf("expected the stored identifier, got %q", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDatastore_FindByProperty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ds := NewDatastore(db)

	mock.ExpectQuery(`SELECT node_path\s+FROM node_properties`).
		WithArgs("labels", "inbox", `/m/%`).
		WillReturnRows(sqlmock.NewRows([]string{"node_path"}).AddRow("/m/1").AddRow("/m/2"))

	paths, err := ds.FindByProperty(context.Background(), "/m", "labels", "inbox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %v", paths)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
