// Package middleware provides HTTP middleware for the user-manager service.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"nakamura/internal/auth"
	"nakamura/internal/jwtauth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityContextKey is the context key for storing the acting user.
const IdentityContextKey contextKey = "identity"

// TokenVerifier verifies acting-user tokens.
type TokenVerifier interface {
	Verify(token string) (*jwtauth.Claims, error)
}

// GetIdentity returns the acting user attached by Identify.
// Requests that never passed through Identify are anonymous.
func GetIdentity(ctx context.Context) auth.Identity {
	id, ok := ctx.Value(IdentityContextKey).(auth.Identity)
	if !ok {
		return auth.AnonymousIdentity
	}
	return id
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// Identify returns middleware that attaches the acting user to the request.
//
// Authentication flow:
//  1. No Authorization header: the request continues as anonymous
//  2. Malformed header or invalid token: 401 Unauthorized
//  3. Valid token: the token subject becomes the acting user
func Identify(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r)
			if err == auth.ErrMissingAuthHeader {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), auth.AnonymousIdentity)))
				return
			}
			if err != nil {
				auth.WriteUnauthorized(w)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token verification failed", "error", err)
				auth.WriteUnauthorized(w)
				return
			}

			id := auth.Identity{UserID: claims.UserID()}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireUser rejects anonymous requests with 401 Unauthorized.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()).IsAnonymous() {
			auth.WriteUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
