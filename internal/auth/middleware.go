package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the context key for storing the caller identity.
	identityContextKey contextKey = "auth_identity"
)

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware provides HTTP middleware for authentication.
type Middleware struct {
	verifier Verifier
	onError  ErrorWriter
}

// NewMiddleware creates a new authentication middleware. A nil onError writes
// a plain JSON error body.
func NewMiddleware(verifier Verifier, onError ErrorWriter) *Middleware {
	if onError == nil {
		onError = writeAuthError
	}
	return &Middleware{verifier: verifier, onError: onError}
}

// RequireAuth is middleware that requires a valid token.
//
// Attaches the Identity to the request context on success.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Authenticate(r)
		if err != nil {
			m.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// RequireRole wraps RequireAuth and rejects identities without one of roles.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.onError(w, r, NewError(ErrForbidden, "insufficient permissions", map[string]interface{}{
				"required": roles,
			}))
		}))
	}
}

// Authenticate extracts and verifies the token carried by r.
func (m *Middleware) Authenticate(r *http.Request) (*Identity, error) {
	token := ExtractTokenFromRequest(r)
	if token == "" {
		return nil, NewError(ErrTokenMissing, "no authentication token provided", nil)
	}
	return m.verifier.Verify(token)
}

// writeAuthError writes an authentication error response.
func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusUnauthorized
	code := "authentication_failed"
	message := err.Error()
	if ae, ok := err.(*AuthError); ok {
		code, message = ae.Code, ae.Message
		if ae.Code == ErrForbidden {
			status = http.StatusForbidden
		}
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"error":     code,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// ExtractTokenFromRequest extracts the bearer token from an HTTP request.
//
// Checks in order:
//  1. Authorization header (Bearer token)
//  2. Query parameter (token), used by WebSocket clients
//
// Returns empty string if no token found.
func ExtractTokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// ContextWithIdentity attaches id to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the identity from the request context.
//
// Returns nil if no identity is attached to the context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
