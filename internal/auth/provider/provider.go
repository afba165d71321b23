package provider

import (
	"context"

	"oauth-demo/internal/auth"

	"golang.org/x/oauth2"
)

// OAuthProvider defines the contract every client registration must
// implement. Implementations return identity facts and the tokens the
// exchange produced; sessions are not their concern.
type OAuthProvider interface {
	// Name returns the registration id (e.g. "google", "keycloak").
	Name() string

	// AuthCodeURL returns the authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code and returns the
	// normalized identity together with the provider tokens.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.Identity, *oauth2.Token, error)

	// TokenSource returns a source that refreshes t when it expires.
	TokenSource(ctx context.Context, t *oauth2.Token) oauth2.TokenSource
}
