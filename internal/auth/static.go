package auth

import "golang.org/x/oauth2"

// NewStaticTokenProvider serves a token minted outside the run, such as the
// output of `gcloud auth print-access-token`. The token is never renewed.
func NewStaticTokenProvider(token string) *TokenProvider {
	return &TokenProvider{
		src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	}
}
