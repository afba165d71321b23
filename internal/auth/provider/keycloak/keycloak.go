package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"oauth-demo/internal/auth/provider/oidc"
)

const providerName = "keycloak"

// Config describes a Keycloak realm client.
type Config struct {
	Name         string
	Issuer       string // realm issuer, e.g. http://keycloak:8080/realms/demo
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURL  string
	Scopes       []string

	// PublicBaseURL is the Keycloak origin reachable by browsers when the
	// service talks to Keycloak over an internal hostname.
	PublicBaseURL string
}

// New initializes a Keycloak OIDC provider using discovery.
func New(ctx context.Context, cfg Config) (*oidc.Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	name := cfg.Name
	if name == "" {
		name = providerName
	}

	authURL := ""
	if cfg.PublicBaseURL != "" {
		u, err := PublicAuthURL(cfg.Issuer, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		authURL = u
	}

	return oidc.New(ctx, oidc.Config{
		Name:         name,
		IssuerURL:    cfg.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		AuthURL:      authURL,
	})
}

// PublicAuthURL rebuilds the realm authorization endpoint on the public
// origin, keeping the realm path of the issuer.
func PublicAuthURL(issuer, publicBaseURL string) (string, error) {
	iu, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("keycloak issuer: %w", err)
	}

	pu, err := url.Parse(publicBaseURL)
	if err != nil || pu.Scheme == "" || pu.Host == "" {
		return "", fmt.Errorf("keycloak public base url %q is invalid", publicBaseURL)
	}

	pu.Path = strings.TrimRight(pu.Path, "/") + strings.TrimRight(iu.Path, "/") + "/protocol/openid-connect/auth"
	return pu.String(), nil
}
