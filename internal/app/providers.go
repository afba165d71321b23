package app

import (
	"context"
	"fmt"

	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/auth/provider/github"
	"oauth-demo/internal/auth/provider/google"
	"oauth-demo/internal/auth/provider/keycloak"
	"oauth-demo/internal/auth/provider/oidc"
	"oauth-demo/internal/auth/provider/userinfo"
	"oauth-demo/internal/config"
	"oauth-demo/internal/logger"

	"golang.org/x/oauth2"
)

// buildProviders turns client registrations into providers. OIDC kinds
// run discovery against their issuer here.
func buildProviders(ctx context.Context, regs []config.Registration) ([]provider.OAuthProvider, error) {
	list := make([]provider.OAuthProvider, 0, len(regs))

	for _, reg := range regs {
		p, err := buildProvider(ctx, reg)
		if err != nil {
			return nil, fmt.Errorf("registration %s: %w", reg.Name, err)
		}

		logger.Info("oauth2 registration ready", map[string]any{
			"registration": reg.Name,
			"provider":     reg.Provider,
		})
		list = append(list, p)
	}

	return list, nil
}

func buildProvider(ctx context.Context, reg config.Registration) (provider.OAuthProvider, error) {
	switch reg.Provider {
	case config.KindGoogle:
		return google.New(ctx, reg.Name, reg.ClientID, reg.ClientSecret, reg.RedirectURL, reg.Scopes)

	case config.KindKeycloak:
		return keycloak.New(ctx, keycloak.Config{
			Name:          reg.Name,
			Issuer:        reg.IssuerURL,
			ClientID:      reg.ClientID,
			ClientSecret:  reg.ClientSecret,
			RedirectURL:   reg.RedirectURL,
			Scopes:        reg.Scopes,
			PublicBaseURL: reg.PublicBaseURL,
		})

	case config.KindOIDC:
		return oidc.New(ctx, oidc.Config{
			Name:         reg.Name,
			IssuerURL:    reg.IssuerURL,
			ClientID:     reg.ClientID,
			ClientSecret: reg.ClientSecret,
			RedirectURL:  reg.RedirectURL,
			Scopes:       reg.Scopes,
		})

	case config.KindGitHub:
		return github.New(reg.Name, reg.ClientID, reg.ClientSecret, reg.RedirectURL, reg.Scopes)

	case config.KindUserInfo:
		return userinfo.New(userinfo.Config{
			Name:         reg.Name,
			ClientID:     reg.ClientID,
			ClientSecret: reg.ClientSecret,
			RedirectURL:  reg.RedirectURL,
			Scopes:       reg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  reg.AuthURL,
				TokenURL: reg.TokenURL,
			},
			UserInfoURL:       reg.UserInfoURL,
			UserNameAttribute: reg.UserNameAttribute,
		})
	}

	return nil, fmt.Errorf("unknown provider kind %q", reg.Provider)
}
