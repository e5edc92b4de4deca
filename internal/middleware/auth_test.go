package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nakamura/internal/auth"
	"nakamura/internal/jwtauth"
)

func testVerifier(t *testing.T) *jwtauth.Verifier {
	t.Helper()
	v, err := jwtauth.NewVerifier(jwtauth.Config{Secret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return v
}

// echoHandler writes the acting user.
func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"user": GetIdentity(r.Context()).UserID})
	})
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdentify(t *testing.T) {
	v := testVerifier(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Identify(v, logger)(echoHandler())

	token, err := v.Issue("carl")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"no header is anonymous", "", http.StatusOK, "anonymous"},
		{"valid token", "Bearer " + token, http.StatusOK, "carl"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer not-a-token", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.header)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				var resp auth.APIError
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to parse response: %v", err)
				}
				if resp.Error.Type != "authentication_error" {
					t.Errorf("error type = %q", resp.Error.Type)
				}
				return
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["user"] != tt.wantUser {
				t.Errorf("user = %q, want %q", body["user"], tt.wantUser)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	v := testVerifier(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Identify(v, logger)(RequireUser(echoHandler()))

	if rec := serve(h, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	token, _ := v.Issue("carl")
	if rec := serve(h, "Bearer "+token); rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestGetIdentity_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetIdentity(req.Context()); !id.IsAnonymous() {
		t.Errorf("expected anonymous, got %+v", id)
	}
}
