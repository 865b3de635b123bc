package auth

import (
	"context"
	"fmt"

	"github.com/circletel/circletel/internal/config"
)

// NewProvider creates an auth Provider based on configuration.
func NewProvider(ctx context.Context, cfg config.AuthConfig) (Provider, error) {
	switch cfg.Provider {
	case "jwks":
		return NewJWKSProvider(ctx, cfg.SupabaseURL, cfg.Audience)
	case "supabase", "":
		return NewSupabaseProvider(cfg.SupabaseJWTSecret, cfg.Audience), nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %q", cfg.Provider)
	}
}
