package app

import (
	"context"
	"fmt"

	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/config"
	"oauth-demo/internal/demo"
	"oauth-demo/internal/logger"
	"oauth-demo/internal/middleware"
	"oauth-demo/internal/security"
	"oauth-demo/internal/session"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	providers, err := buildProviders(ctx, cfg.Registrations)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	registry, err := provider.NewRegistry(providers...)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	router, err := newRouter(security.DefaultPolicy(), registry, infra.Sessions, security.Options{
		IdleTimeout:     cfg.SessionIdleTimeout,
		AbsoluteTimeout: cfg.SessionAbsoluteTimeout,
	})
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, infra.Close, nil
}

func newRouter(
	policy security.Policy,
	registry *provider.Registry,
	store session.Store,
	opts security.Options,
) (*gin.Engine, error) {
	chain, err := security.NewChain(policy, registry, store, opts)
	if err != nil {
		return nil, fmt.Errorf("security chain: %w", err)
	}

	fields := policy.Fields()
	fields["registrations"] = registry.Names()
	logger.Info("security chain ready", fields)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	// The chain guards every route registered after it, unmatched paths included.
	chain.Install(router)

	// ----------------------------
	// Protected Routes
	// ----------------------------

	demo.NewHandler().RegisterRoutes(router)

	return router, nil
}
