package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SupabaseProvider validates HS256 session tokens signed with the project JWT secret.
type SupabaseProvider struct {
	secret   []byte
	audience string
}

// NewSupabaseProvider creates a provider for the given JWT secret and audience.
func NewSupabaseProvider(secret, audience string) *SupabaseProvider {
	return &SupabaseProvider{secret: []byte(secret), audience: audience}
}

// Name returns the provider name.
func (p *SupabaseProvider) Name() string { return "supabase" }

// ValidateToken validates a bearer token and returns an Identity.
func (p *SupabaseProvider) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{"HS256"})}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return identityFromClaims(claims)
}

// IssueToken signs a session token in the shape Supabase issues. It is used by
// the CLI to mint local development tokens.
func (p *SupabaseProvider) IssueToken(userID, email, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":          userID,
		"email":        email,
		"aud":          p.audience,
		"role":         "authenticated",
		"app_metadata": map[string]any{"role": role},
		"iat":          time.Now().Unix(),
		"exp":          time.Now().Add(ttl).Unix(),
		"jti":          uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
