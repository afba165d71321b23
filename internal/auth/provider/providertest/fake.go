// Package providertest provides provider doubles for tests: an in-memory
// OAuthProvider and an httptest-backed OpenID Connect issuer.
package providertest

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"oauth-demo/internal/auth"

	"golang.org/x/oauth2"
)

// Exchange records one ExchangeCode call.
type Exchange struct {
	Code     string
	Verifier string
}

// Fake is an OAuthProvider that never talks to the network.
type Fake struct {
	ProviderName string
	AuthURL      string

	Identity *auth.Identity
	Token    *oauth2.Token
	Err      error

	// Refreshed is handed out when an expired token is asked for.
	Refreshed  *oauth2.Token
	RefreshErr error

	mu        sync.Mutex
	exchanges []Exchange
	refreshes int
}

func NewFake(name string) *Fake {
	return &Fake{
		ProviderName: name,
		AuthURL:      "https://idp.example.com/authorize",
		Identity: &auth.Identity{
			Provider: name,
			Subject:  "user-1",
			Email:    "user@example.com",
		},
		Token: &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer"},
	}
}

func (f *Fake) Name() string {
	return f.ProviderName
}

func (f *Fake) AuthCodeURL(state string, codeChallenge string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	return f.AuthURL + "?" + q.Encode()
}

func (f *Fake) ExchangeCode(_ context.Context, code, verifier string) (*auth.Identity, *oauth2.Token, error) {
	f.mu.Lock()
	f.exchanges = append(f.exchanges, Exchange{Code: code, Verifier: verifier})
	f.mu.Unlock()

	if f.Err != nil {
		return nil, nil, f.Err
	}
	id := *f.Identity
	tok := *f.Token
	return &id, &tok, nil
}

func (f *Fake) TokenSource(_ context.Context, t *oauth2.Token) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		if t.Valid() {
			return t, nil
		}

		f.mu.Lock()
		f.refreshes++
		f.mu.Unlock()

		if f.RefreshErr != nil {
			return nil, f.RefreshErr
		}
		if f.Refreshed == nil {
			return nil, errors.New("no refreshed token configured")
		}
		tok := *f.Refreshed
		return &tok, nil
	})
}

// Exchanges returns the recorded ExchangeCode calls.
func (f *Fake) Exchanges() []Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Exchange, len(f.exchanges))
	copy(out, f.exchanges)
	return out
}

// Refreshes returns how many times an expired token was refreshed.
func (f *Fake) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (fn tokenSourceFunc) Token() (*oauth2.Token, error) {
	return fn()
}
