package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	claimsKey
)

// WithToken returns a copy of ctx carrying token and its claims.
func WithToken(ctx context.Context, token string, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, tokenKey, token)
	return context.WithValue(ctx, claimsKey, claims)
}

// Token returns the caller's raw auth token, or "".
func Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// UserID returns the caller's user record id, or "".
func UserID(ctx context.Context) string {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok && c != nil {
		return c.ID
	}
	return ""
}

// ClaimsFrom returns the caller's token claims, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// TokenFromRequest reads the Authorization header, accepting an optional
// Bearer prefix.
func TokenFromRequest(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		h = strings.TrimSpace(h[7:])
	}
	return h
}

// Inspect stores the caller's token in the request context when one is
// present and readable. It never rejects a request.
func Inspect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := TokenFromRequest(r); token != "" {
			if claims, err := ParseToken(token); err == nil {
				r = r.WithContext(WithToken(r.Context(), token, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests without a readable, unexpired token with 401.
func Require(next http.Handler) http.Handler {
	return requireAt(time.Now)(next)
}

func requireAt(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "missing Authorization header")
				return
			}
			claims, err := ParseToken(token)
			if err != nil {
				unauthorized(w, "invalid auth token")
				return
			}
			if claims.Expired(now()) {
				unauthorized(w, ErrTokenExpired.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token, claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}

// IsAuthError reports whether err means the caller must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotLoggedIn) || errors.Is(err, ErrTokenExpired)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
