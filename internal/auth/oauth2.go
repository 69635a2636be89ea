package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewOAuth2ClientCredentialsProvider creates a provider for the client
// credentials grant.
func NewOAuth2ClientCredentialsProvider(
	tokenURL string,
	clientID string,
	clientSecret string,
	scopes []string,
	refreshBeforeExpiry time.Duration,
) (*TokenProvider, error) {
	if err := requireFields(tokenURL, clientID, clientSecret); err != nil {
		return nil, err
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return &TokenProvider{
		src: oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(tokenContext()), refreshBeforeExpiry),
	}, nil
}

// NewOAuth2ResourceOwnerProvider creates a provider for the resource owner
// password credentials grant. Expired tokens are replaced by running the
// grant again.
func NewOAuth2ResourceOwnerProvider(
	tokenURL string,
	clientID string,
	clientSecret string,
	username string,
	password string,
	scopes []string,
	refreshBeforeExpiry time.Duration,
) (*TokenProvider, error) {
	if err := requireFields(tokenURL, clientID, clientSecret); err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	src := &passwordSource{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		username: username,
		password: password,
	}
	return &TokenProvider{
		src: oauth2.ReuseTokenSourceWithExpiry(nil, src, refreshBeforeExpiry),
	}, nil
}

type passwordSource struct {
	cfg      *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	return s.cfg.PasswordCredentialsToken(tokenContext(), s.username, s.password)
}

func tokenContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})
}

func requireFields(tokenURL, clientID, clientSecret string) error {
	var missing []string
	if strings.TrimSpace(tokenURL) == "" {
		missing = append(missing, "token_url")
	}
	if strings.TrimSpace(clientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(clientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
