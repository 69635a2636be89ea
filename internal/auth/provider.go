// Package auth supplies the bearer tokens that adapters attach to outgoing
// load-test calls.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Object-store OAuth scopes.
const (
	StorageReadScope  = "https://www.googleapis.com/auth/devstorage.read_only"
	StorageWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"
)

// Provider hands out bearer tokens. Implementations must be safe for use by
// every worker at once.
type Provider interface {
	Token(ctx context.Context) (string, error)
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

// StorageScopes returns the narrowest object-store scope that permits the
// workload; write covers resumable upload sessions.
func StorageScopes(write bool) []string {
	if write {
		return []string{StorageWriteScope}
	}
	return []string{StorageReadScope}
}

// TokenProvider serves tokens from an oauth2.TokenSource. Refreshing sources
// renew the token ahead of its expiry.
type TokenProvider struct {
	src oauth2.TokenSource
}

func (p *TokenProvider) token(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch oauth2 token: %w", err)
	}
	return tok, nil
}

// Token returns the current access token.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// InjectHeader sets the Authorization header using the token's type.
func (p *TokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	tok, err := p.token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

func (p *TokenProvider) Close() error {
	return nil
}
