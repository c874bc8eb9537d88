package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vstrealm/reviewd/internal/model"
)

var errNoToken = errors.New("no bearer token in request")

// Authenticator resolves a bearer token to a full identity. The identity
// service implements it; the indirection keeps this package free of a
// service import and lets middleware tests use a fake.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// contextKey is unexported so only this package can read or write values
// stored under it. A plain string key could be shadowed by any package
// that happens to use the same string.
type contextKey string

const userKey contextKey = "user"

// RequireAuth enforces authentication on protected routes.
//
// It reads the token from the "Authorization: Bearer <token>" header,
// resolves the caller through the Authenticator, and stores the identity
// in the request context. A missing, malformed, or unresolvable token
// stops the chain with 401. A token whose subject no longer exists fails
// the same way, so a deleted user's old tokens are dead immediately.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticateRequest(r, authn)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="reviewd"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthenticated","message":"valid bearer token required"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the caller's identity when a valid token is
// present but never blocks the request. Handlers behind it treat a
// missing context identity as an anonymous caller.
func OptionalAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := authenticateRequest(r, authn); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated identity from the request
// context. Returns (nil, false) for anonymous requests.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

func authenticateRequest(r *http.Request, authn Authenticator) (*model.User, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}
	return authn.Authenticate(r.Context(), token)
}

// bearerToken extracts the credential from the Authorization header. The
// scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errNoToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}
