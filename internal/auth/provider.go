// Package auth validates Supabase session tokens and the scheduled-job secret.
package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Identity is the authenticated caller behind a request.
type Identity struct {
	UserID string // Supabase auth user ID (sub)
	Email  string
	Role   string // "admin" or "user"
}

// IsAdmin reports whether the identity may use the admin API.
func (i *Identity) IsAdmin() bool { return i != nil && i.Role == "admin" }

// Provider validates bearer tokens and returns identities.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	Name() string
}

// roleFromClaims maps Supabase app_metadata.role onto the API's two roles.
func roleFromClaims(claims map[string]any) string {
	meta, _ := claims["app_metadata"].(map[string]any)
	role, _ := meta["role"].(string)
	switch role {
	case "admin", "super_admin":
		return "admin"
	default:
		return "user"
	}
}

func identityFromClaims(claims map[string]any) (*Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnauthorized
	}
	email, _ := claims["email"].(string)
	return &Identity{UserID: sub, Email: email, Role: roleFromClaims(claims)}, nil
}
