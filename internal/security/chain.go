package security

import (
	"net/http"
	"strings"
	"time"

	"oauth-demo/internal/auth/client"
	"oauth-demo/internal/auth/handler"
	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/middleware"
	"oauth-demo/internal/session"

	"github.com/gin-gonic/gin"
)

// Options carries the session lifetimes the chain works with.
type Options struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
}

// Chain is a validated filter chain ready to be installed on a router.
type Chain struct {
	policy  Policy
	auth    *middleware.AuthMiddleware
	login   *handler.Handler
	clients *client.Manager
}

func NewChain(policy Policy, registry *provider.Registry, store session.Store, opts Options) (*Chain, error) {
	if err := policy.Validate(registry.Len()); err != nil {
		return nil, err
	}

	c := &Chain{policy: policy}

	if policy.OAuth2Client {
		c.clients = client.NewManager(registry, store)
	}
	if policy.OAuth2Login {
		c.login = handler.NewHandler(registry, store, c.clients, handler.Options{
			IdleTimeout:     opts.IdleTimeout,
			AbsoluteTimeout: opts.AbsoluteTimeout,
		})
	}
	if policy.AnyRequest == Authenticated {
		c.auth = middleware.NewAuthMiddleware(store, middleware.Options{
			IdleTimeout: opts.IdleTimeout,
			Permit:      loginFlowRequest,
			EntryPoint:  middleware.LoginEntryPoint(EntryPointURL(registry)),
		})
	}

	return c, nil
}

// Install puts the chain in front of every route of r, unmatched ones
// included, and registers the login flow endpoints. It must run before
// application routes are added.
func (c *Chain) Install(r *gin.Engine) {
	if c.auth != nil {
		r.Use(middleware.GinRequireAuth(c.auth))
	}
	if c.login != nil {
		c.login.RegisterRoutes(r)
	}
}

// Clients returns the authorized client manager, or nil when OAuth2
// client support is off.
func (c *Chain) Clients() *client.Manager {
	return c.clients
}

func (c *Chain) Policy() Policy {
	return c.policy
}

// EntryPointURL is where unauthenticated browsers are sent: straight to
// the provider when only one is registered, to the login page otherwise.
func EntryPointURL(registry *provider.Registry) string {
	if names := registry.Names(); len(names) == 1 {
		return handler.AuthorizationURL(names[0])
	}
	return handler.LoginPath
}

// loginFlowRequest matches exactly the requests the login handler serves.
func loginFlowRequest(r *http.Request) bool {
	p := r.URL.Path
	switch r.Method {
	case http.MethodGet:
		return p == handler.LoginPath ||
			p == handler.LogoutPath ||
			singleSegment(p, handler.AuthorizationPath) ||
			singleSegment(p, handler.CallbackPath)
	case http.MethodPost:
		return p == handler.LogoutPath
	}
	return false
}

// singleSegment reports whether p is prefix followed by one non-empty
// path segment.
func singleSegment(p, prefix string) bool {
	rest, ok := strings.CutPrefix(p, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/")
}
