package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSProvider validates asymmetric Supabase tokens using the project JWKS.
type JWKSProvider struct {
	issuer   string
	audience string
	jwks     keyfunc.Keyfunc
}

// NewJWKSProvider fetches the JWKS published by the Supabase auth server.
func NewJWKSProvider(ctx context.Context, supabaseURL, audience string) (*JWKSProvider, error) {
	if supabaseURL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	base := strings.TrimRight(supabaseURL, "/")
	jwksURL := base + "/auth/v1/.well-known/jwks.json"
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return &JWKSProvider{issuer: base + "/auth/v1", audience: audience, jwks: jwks}, nil
}

// Name returns the provider name.
func (p *JWKSProvider) Name() string { return "jwks" }

// ValidateToken parses a Supabase JWT and returns an Identity.
func (p *JWKSProvider) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired()}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	token, err := jwt.Parse(tokenStr, p.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return identityFromClaims(claims)
}
