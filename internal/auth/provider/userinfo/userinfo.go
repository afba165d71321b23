package userinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"oauth-demo/internal/auth"
	"oauth-demo/internal/logger"

	"golang.org/x/oauth2"
)

// Config is a plain OAuth2 registration without OIDC: the principal is
// loaded from the provider's user-info endpoint.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string

	// UserNameAttribute names the user-info attribute holding the
	// principal name. Defaults to "sub".
	UserNameAttribute string
}

type Provider struct {
	name          string
	oauthConfig   *oauth2.Config
	userInfoURL   string
	userNameAttr  string
	maxInfoLength int64
}

func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.RedirectURL == "" ||
		cfg.Endpoint.AuthURL == "" || cfg.Endpoint.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, errors.New("oauth2 config missing required fields")
	}

	attr := cfg.UserNameAttribute
	if attr == "" {
		attr = "sub"
	}

	return &Provider{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       cfg.Scopes,
		},
		userInfoURL:   cfg.UserInfoURL,
		userNameAttr:  attr,
		maxInfoLength: 1 << 20,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Identity, *oauth2.Token, error) {

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, nil, fmt.Errorf("%s token exchange failed: %w", p.name, err)
	}

	attrs, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	subject := stringAttr(attrs, p.userNameAttr)
	if subject == "" {
		return nil, nil, fmt.Errorf("%s user info missing %q", p.name, p.userNameAttr)
	}

	name := stringAttr(attrs, "name")
	if name == "" {
		name = stringAttr(attrs, "login")
	}

	verified, _ := attrs["email_verified"].(bool)

	logger.Info("oauth2 user info loaded", map[string]any{
		"provider":      p.name,
		"email_present": stringAttr(attrs, "email") != "",
	})

	return &auth.Identity{
		Provider:      p.name,
		Subject:       subject,
		Email:         stringAttr(attrs, "email"),
		EmailVerified: verified,
		Name:          name,
		Attributes:    attrs,
	}, token, nil
}

func (p *Provider) TokenSource(ctx context.Context, t *oauth2.Token) oauth2.TokenSource {
	return p.oauthConfig.TokenSource(ctx, t)
}

func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s user info request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s user info request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s user info returned status %d", p.name, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, p.maxInfoLength))
	dec.UseNumber()

	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("%s user info decode failed: %w", p.name, err)
	}

	return attrs, nil
}

// stringAttr renders string and numeric attributes; numeric ids (GitHub)
// arrive as json.Number.
func stringAttr(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
