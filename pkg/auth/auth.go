// Package auth carries the acting principal through context so ledger
// appends can attribute every event to an actor id and role. The core
// exposes no transport of its own; callers that authenticate upstream can
// hand their JWT to ParseToken and attach the resulting principal.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal identifies who (or what) is acting.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"` // e.g. "owner", "agent", "system"
}

// System is the fallback principal for unattributed internal actions.
var System = Principal{ID: "system", Role: "system"}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("no principal in context")
	}
	return p, nil
}

// PrincipalOrSystem returns the context principal, or System when absent.
func PrincipalOrSystem(ctx context.Context) Principal {
	if p, err := GetPrincipal(ctx); err == nil {
		return p
	}
	return System
}

// Claims are the JWT claims accepted from upstream callers.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// ParseToken validates a JWT and maps it to a Principal. keyFunc supplies
// the verification key, as configured by the hosting process.
func ParseToken(tokenStr string, keyFunc jwt.Keyfunc) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc)
	if err != nil {
		return Principal{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	role := claims.Role
	if role == "" {
		role = "owner"
	}
	return Principal{ID: claims.Subject, Role: role}, nil
}
