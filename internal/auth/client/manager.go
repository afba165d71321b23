// Package client keeps the tokens obtained at login per session and hands
// them out, refreshed when needed, to code calling downstream resource
// servers on the user's behalf.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/logger"
	"oauth-demo/internal/session"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrNotAuthorized means the session holds no token for the registration.
var ErrNotAuthorized = errors.New("oauth2 client not authorized")

type Manager struct {
	providers *provider.Registry
	store     session.Store
	refresh   singleflight.Group
}

func NewManager(providers *provider.Registry, store session.Store) *Manager {
	return &Manager{
		providers: providers,
		store:     store,
	}
}

// Save records token as the authorized client of providerName for the session.
func (m *Manager) Save(ctx context.Context, sessionID, providerName string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("oauth2 client: nil token")
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return session.ErrNotFound
	}

	if sess.Tokens == nil {
		sess.Tokens = make(map[string]*oauth2.Token)
	}
	sess.Tokens[providerName] = token

	return m.store.Update(ctx, *sess)
}

const refreshTimeout = 30 * time.Second

// Token returns a valid access token for the session and registration,
// refreshing and persisting it when the stored one expired. Concurrent
// calls for the same session and registration share one refresh.
func (m *Manager) Token(ctx context.Context, sessionID, providerName string) (*oauth2.Token, error) {
	p, err := m.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	v, err, _ := m.refresh.Do(sessionID+"\x00"+providerName, func() (any, error) {
		// Waiters share this refresh; the first caller going away must not fail them.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		sess, err := m.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, ErrNotAuthorized
		}

		current := sess.Tokens[providerName]
		if current == nil {
			return nil, ErrNotAuthorized
		}
		if current.Valid() {
			return current, nil
		}

		tok, err := p.TokenSource(ctx, current).Token()
		if err != nil {
			logger.Warn("oauth2 token refresh failed", map[string]any{
				"provider": providerName,
				"error":    err.Error(),
			})
			return nil, fmt.Errorf("refresh %s token: %w", providerName, err)
		}

		sess.Tokens[providerName] = tok
		if err := m.store.Update(ctx, *sess); err != nil {
			return nil, fmt.Errorf("persist %s token: %w", providerName, err)
		}

		logger.Info("oauth2 token refreshed", map[string]any{
			"provider": providerName,
			"expiry":   tok.Expiry,
		})

		return tok, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*oauth2.Token), nil
}

// Client returns an HTTP client that sends the session's token for
// providerName and refreshes it through the Manager when it expires.
func (m *Manager) Client(ctx context.Context, sessionID, providerName string) (*http.Client, error) {
	tok, err := m.Token(ctx, sessionID, providerName)
	if err != nil {
		return nil, err
	}

	src := &sessionTokenSource{
		ctx:          ctx,
		manager:      m,
		sessionID:    sessionID,
		providerName: providerName,
	}

	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

type sessionTokenSource struct {
	ctx          context.Context
	manager      *Manager
	sessionID    string
	providerName string
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	return s.manager.Token(s.ctx, s.sessionID, s.providerName)
}
