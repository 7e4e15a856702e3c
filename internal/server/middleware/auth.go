// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// subjectKey is the context key for storing the authenticated token subject.
const subjectKey ContextKey = "subject"

// Messages returned with 401 responses.
const (
	MsgMissingToken = "Authorization token is missing or invalid."
	MsgExpiredToken = "Token has expired."
	MsgInvalidToken = "Invalid token."
)

// ErrTokenExpired is wrapped by validators when a token is past its expiry.
var ErrTokenExpired = errors.New("token expired")

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (SubjectGetter, error)
}

// SubjectGetter is an interface for extracting the subject from token claims.
// jwt.RegisteredClaims satisfies it.
type SubjectGetter interface {
	GetSubject() (string, error)
}

// AuthMiddleware creates middleware that validates JWT tokens and adds the token subject to request context.
func AuthMiddleware(jwtService TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Parse Bearer token
			// Handle case-insensitive "Bearer" prefix
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, MsgMissingToken)
				return
			}

			claims, err := jwtService.ValidateToken(parts[1])
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					unauthorized(w, MsgExpiredToken)
				} else {
					unauthorized(w, MsgInvalidToken)
				}
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				unauthorized(w, MsgInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetSubject extracts the authenticated token subject from the request context.
func GetSubject(r *http.Request) (string, error) {
	subject, ok := r.Context().Value(subjectKey).(string)
	if !ok || subject == "" {
		return "", fmt.Errorf("subject not found in request context")
	}
	return subject, nil
}

// SubjectKey returns the context key for the subject (for testing purposes).
func SubjectKey() ContextKey {
	return subjectKey
}
