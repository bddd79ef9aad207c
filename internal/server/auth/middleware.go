package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"filegate/pkg/api"
)

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal placed by Middleware or Optional.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Middleware rejects requests without a valid bearer token and places the
// caller's principal in the request context.
func Middleware(store *TokenStore) func(http.Handler) http.Handler {
	return authenticate(store, true)
}

// Optional lets anonymous requests through but still rejects bad tokens.
func Optional(store *TokenStore) func(http.Handler) http.Handler {
	return authenticate(store, false)
}

func authenticate(store *TokenStore, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					Unauthorized(w, "unauthorized, token not provided")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Remove "Bearer " (only if present)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				Unauthorized(w, "unauthorized, expected a bearer token")
				return
			}

			p, ok := store.Resolve(strings.TrimSpace(token))
			if !ok {
				Unauthorized(w, "unauthorized, unknown token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Unauthorized writes a 401 JSON error.
func Unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="filegate"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{Errors: []string{msg}})
}
