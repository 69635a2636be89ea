package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
)

const defaultAuthRefreshLeeway = 30 * time.Second

func buildAuthProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	authCfg := cfg.Auth
	if strings.TrimSpace(string(authCfg.Type)) == "" {
		return nil, nil
	}

	refreshWindow := authCfg.RefreshBeforeExpiry
	if refreshWindow <= 0 {
		refreshWindow = defaultAuthRefreshLeeway
	}

	switch authCfg.Type {
	case config.AuthTypeStatic:
		if strings.TrimSpace(authCfg.StaticToken) == "" {
			return nil, fmt.Errorf("static token is required for %s", authCfg.Type)
		}
		return auth.NewStaticTokenProvider(authCfg.StaticToken), nil
	case config.AuthTypeOAuth2ClientCredentials:
		return auth.NewOAuth2ClientCredentialsProvider(
			authCfg.TokenURL,
			authCfg.ClientID,
			authCfg.ClientSecret,
			authScopes(cfg),
			refreshWindow,
		)
	case config.AuthTypeOAuth2ResourceOwner:
		return auth.NewOAuth2ResourceOwnerProvider(
			authCfg.TokenURL,
			authCfg.ClientID,
			authCfg.ClientSecret,
			authCfg.Username,
			authCfg.Password,
			authScopes(cfg),
			refreshWindow,
		)
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authCfg.Type)
	}
}

// authScopes returns the configured scopes. Object-store runs without any
// fall back to the narrowest storage scope their operation needs.
func authScopes(cfg *config.Config) []string {
	if len(cfg.Auth.Scopes) > 0 || cfg.Protocol != config.ProtocolObjectStore {
		return cfg.Auth.Scopes
	}
	return auth.StorageScopes(cfg.ObjectStore.Operation == config.ObjectStoreWrite)
}

// bearerToken retrieves a token from the provider and formats it as a Bearer string.
func bearerToken(ctx context.Context, provider auth.Provider) (string, error) {
	if provider == nil {
		return "", nil
	}
	token, err := provider.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

func ensureAuthHeader(ctx context.Context, provider auth.Provider, headers http.Header) error {
	if provider == nil {
		return nil
	}
	if headers == nil {
		return fmt.Errorf("headers cannot be nil")
	}
	bearer, err := bearerToken(ctx, provider)
	if err != nil {
		return err
	}
	headers.Set("Authorization", bearer)
	return nil
}

// authMetadata returns the per-call gRPC metadata carrying the bearer token.
func authMetadata(ctx context.Context, provider auth.Provider) (metadata.MD, error) {
	if provider == nil {
		return nil, nil
	}
	bearer, err := bearerToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	return metadata.Pairs("authorization", bearer), nil
}
