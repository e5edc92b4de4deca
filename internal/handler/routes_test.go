package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nakamura/internal/acl"
	"nakamura/internal/auth"
	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/config"
	"nakamura/internal/event"
	"nakamura/internal/jwtauth"
	"nakamura/internal/messaging"
	"nakamura/internal/middleware"
	"nakamura/internal/personal"
	"nakamura/internal/postprocess"
	"nakamura/internal/session"
	"nakamura/internal/usermanager"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	handler  http.Handler
	verifier *jwtauth.Verifier
	sessions *session.MemoryFactory
	events   *event.MemLog
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.NewMemoryFactory()
	provisioner, err := personal.NewProvisioner(acl.NameResolver{}, personal.Options{Logger: logger})
	if err != nil {
		t.Fatalf("failed to create provisioner: %v", err)
	}
	events := event.NewMemLog()
	processor := postprocess.NewProcessor(provisioner, event.NewTranslator(events, logger), logger)

	verifier, err := jwtauth.NewVerifier(jwtauth.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, &Deps{
		Config:   &config.Config{Environment: "development", Backend: config.BackendMemory},
		Users:    usermanager.NewManager(sessions, processor, logger),
		Messages: messaging.NewService(sessions, logger),
		Events:   events,
		Sessions: sessions,
		Logger:   logger,
	})

	return &testServer{
		handler:  middleware.Identify(verifier, logger)(mux),
		verifier: verifier,
		sessions: sessions,
		events:   events,
	}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		token, err := s.verifier.Issue(user)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) auth.APIError {
	t.Helper()
	var apiErr auth.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return apiErr
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected status 200, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected status 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "nakamura" || body["backend"] != config.BackendMemory {
		t.Errorf("unexpected status body: %v", body)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, &Deps{Health: func(context.Context) error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{
		"id":         "carl",
		"properties": map[string][]string{"email": {"carl@example.com"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res resultResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Authorizable == nil || res.Authorizable.ID != "carl" || res.Authorizable.Kind != "user" {
		t.Errorf("unexpected authorizable: %+v", res.Authorizable)
	}
	if len(res.Changes) == 0 || res.Changes[0] != change.OnCreated(authorizable.UserPrefix+"carl") {
		t.Errorf("unexpected changes: %v", res.Changes)
	}
}

func TestCreateUser_Errors(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "carl"}); rec.Code != http.StatusCreated {
		t.Fatalf("setup: expected status 201, got %d", rec.Code)
	}

	tests := []struct {
		name       string
		user       string
		body       any
		wantStatus int
		wantType   string
	}{
		{"anonymous", "", map[string]any{"id": "dave"}, http.StatusUnauthorized, "authentication_error"},
		{"duplicate", "admin", map[string]any{"id": "carl"}, http.StatusConflict, "conflict_error"},
		{"invalid id", "admin", map[string]any{"id": "a/b"}, http.StatusBadRequest, "invalid_request_error"},
		{"invalid json", "admin", "not an object", http.StatusBadRequest, "invalid_request_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/system/userManager/user", tt.user, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := decodeError(t, rec).Error.Type; got != tt.wantType {
				t.Errorf("expected error type %q, got %q", tt.wantType, got)
			}
		})
	}
}

func TestUpdateAndDeleteUser(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "carl"})

	rec := s.do(t, http.MethodPost, "/system/userManager/user/carl", "admin", map[string]any{
		"set": map[string][]string{"firstName": {"Carl"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res resultResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got := res.Authorizable.Properties["firstName"]; len(got) != 1 || got[0] != "Carl" {
		t.Errorf("expected firstName to be set, got %v", got)
	}

	if rec := s.do(t, http.MethodPost, "/system/userManager/user/nobody", "admin", map[string]any{}); rec.Code != http.StatusNotFound {
		t.Errorf("update missing: expected status 404, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, "/system/userManager/user/carl", "admin", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected status 200, got %d", rec.Code)
	}
	if ok, _ := s.sessions.Content.ItemExists(context.Background(), personal.HomePath("carl", false)); ok {
		t.Error("expected home to be removed")
	}
	if rec := s.do(t, http.MethodDelete, "/system/userManager/user/carl", "admin", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected status 404, got %d", rec.Code)
	}
}

func TestGroupMembers(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "carl"})
	if rec := s.do(t, http.MethodPost, "/system/userManager/group", "admin", map[string]any{"id": "teamA"}); rec.Code != http.StatusCreated {
		t.Fatalf("create group: expected status 201, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/system/userManager/group/teamA/members", "admin", map[string]any{"add": []string{"carl"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("add members: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res resultResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(res.Authorizable.Members) != 1 || res.Authorizable.Members[0] != "carl" {
		t.Errorf("expected carl to be a member, got %v", res.Authorizable.Members)
	}

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"empty", map[string]any{}, http.StatusBadRequest},
		{"unknown member", map[string]any{"add": []string{"ghost"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/system/userManager/group/teamA/members", "admin", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestGetProfile(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{
		"id":         "carl",
		"properties": map[string][]string{"email": {"carl@example.com"}},
	})

	rec := s.do(t, http.MethodGet, "/api/v1/profiles/user/carl", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var profile profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&profile); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if profile.Path != personal.ProfilePath("carl", false) {
		t.Errorf("unexpected path %q", profile.Path)
	}
	if got := profile.Properties["email"]; len(got) != 1 || got[0] != "carl@example.com" {
		t.Errorf("expected email on profile, got %v", got)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"unknown kind", "/api/v1/profiles/robot/carl", http.StatusBadRequest},
		{"missing", "/api/v1/profiles/user/nobody", http.StatusNotFound},
		{"wrong kind", "/api/v1/profiles/group/carl", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodGet, tt.path, "", nil); rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestGetProfile_Denied(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "carl"})

	err := s.sessions.ACL.Upsert(context.Background(), acl.Entry{
		Path:       personal.ProfilePath("carl", false),
		Principal:  acl.AnonymousName,
		Capability: acl.Read,
		Allow:      false,
	})
	if err != nil {
		t.Fatalf("failed to deny access: %v", err)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/profiles/user/carl", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous: expected status 403, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/profiles/user/carl", "carl", nil); rec.Code != http.StatusOK {
		t.Errorf("owner: expected status 200, got %d", rec.Code)
	}
}

func TestMessages(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "alice"})
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "bob"})

	rec := s.do(t, http.MethodPost, "/api/v1/messages", "alice", map[string]any{
		"to":      []string{"bob"},
		"subject": "hello",
		"body":    "hi bob",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/messages?label=inbox", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected status 200, got %d", rec.Code)
	}
	var list struct {
		Messages []messaging.Message `json:"messages"`
		Count    int                 `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Count != 1 || list.Messages[0].From != "alice" || list.Messages[0].Subject != "hello" {
		t.Errorf("unexpected inbox: %+v", list)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		body       any
		wantStatus int
	}{
		{"anonymous send", http.MethodPost, "/api/v1/messages", "", map[string]any{"to": []string{"bob"}}, http.StatusUnauthorized},
		{"no recipients", http.MethodPost, "/api/v1/messages", "alice", map[string]any{}, http.StatusBadRequest},
		{"unknown recipient", http.MethodPost, "/api/v1/messages", "alice", map[string]any{"to": []string{"ghost"}}, http.StatusBadRequest},
		{"unknown sender", http.MethodPost, "/api/v1/messages", "ghost", map[string]any{"to": []string{"bob"}}, http.StatusForbidden},
		{"bad label", http.MethodGet, "/api/v1/messages?label=trash", "bob", nil, http.StatusBadRequest},
		{"bad method", http.MethodPut, "/api/v1/messages", "bob", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, tt.user, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/system/userManager/user", "admin", map[string]any{"id": "carl"})

	rec := s.do(t, http.MethodGet, "/api/v1/events/carl", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var list struct {
		Events []event.Event `json:"events"`
		Count  int           `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Count != 1 || list.Events[0].Topic != event.TopicCreated || list.Events[0].ActingUser != "admin" {
		t.Errorf("unexpected events: %+v", list)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/events/carl", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected status 401, got %d", rec.Code)
	}
}
