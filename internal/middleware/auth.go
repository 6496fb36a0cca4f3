package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Dan9191/bank-cards/internal/models"
)

type contextKey string

const callerKey contextKey = "caller"

// TokenParser resolves a bearer token to the caller it was issued to
type TokenParser interface {
	ParseToken(token string) (models.Caller, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the caller in the context
func AuthMiddleware(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid authorization header format")
				return
			}

			caller, err := parser.ParseToken(parts[1])
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller returns a copy of ctx carrying caller
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the authenticated caller stored by AuthMiddleware
func CallerFrom(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(models.Caller)
	return caller, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
