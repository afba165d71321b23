package google

import (
	"context"
	"errors"

	"oauth-demo/internal/auth/provider/oidc"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"
)

// New initializes a Google registration. Google is a standard OIDC issuer,
// so this only fixes the issuer and the default name.
func New(
	ctx context.Context,
	name string,
	clientID string,
	clientSecret string,
	redirectURL string,
	scopes []string,
) (*oidc.Provider, error) {

	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	if name == "" {
		name = providerName
	}

	return oidc.New(ctx, oidc.Config{
		Name:         name,
		IssuerURL:    issuerURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	})
}
