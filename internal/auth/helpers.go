// Package auth identifies the acting user of a request and writes
// authentication error responses.
package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"nakamura/internal/acl"
)

// Sentinel errors for token extraction failures.
// These can be used for logging but should NOT be exposed in responses.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthScheme = errors.New("invalid authorization scheme: expected Bearer")
	ErrEmptyToken        = errors.New("empty bearer token")
)

// Identity is the acting user of a request.
type Identity struct {
	UserID string
}

// AnonymousIdentity is the identity of requests without credentials.
var AnonymousIdentity = Identity{UserID: acl.AnonymousName}

// IsAnonymous reports whether the request carried no credentials.
func (i Identity) IsAnonymous() bool {
	return i.UserID == "" || i.UserID == acl.AnonymousName
}

// Principal returns the access-control principal of the identity.
func (i Identity) Principal() acl.Principal {
	if i.IsAnonymous() {
		return acl.Anonymous
	}
	return acl.Principal{Name: i.UserID}
}

// ExtractBearerToken extracts the token from an "Authorization: Bearer <token>" header.
// Does not log anything.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", ErrInvalidAuthScheme
	}

	token := strings.TrimPrefix(authHeader, prefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

// APIError is the JSON error envelope of every endpoint.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error message and type.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteJSONError writes {"error": {"message": "<message>", "type": "<errorType>"}}.
func WriteJSONError(w http.ResponseWriter, status int, message, errorType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
		},
	}); err != nil {
		slog.Warn("failed to write JSON error response", "error", err)
	}
}

// WriteUnauthorized writes a 401 Unauthorized JSON response.
// Use when credentials are missing, malformed or invalid.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication_error")
}

// WriteForbidden writes a 403 Forbidden JSON response.
// Use when the acting user may not perform the operation.
func WriteForbidden(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusForbidden, "forbidden", "permission_error")
}
