// Package security describes and installs the filter chain that guards
// every route of the service.
package security

import (
	"errors"
	"fmt"
)

// Rule is the authorization rule applied to any request that is not a
// login flow endpoint.
type Rule string

const (
	Authenticated Rule = "authenticated"
	PermitAll     Rule = "permitAll"
)

// Policy is the configuration of the filter chain.
type Policy struct {
	// CSRF enables token checks on state-changing requests.
	CSRF bool

	AnyRequest Rule

	// OAuth2Login enables the browser login flow and its entry point.
	OAuth2Login bool

	// OAuth2Client keeps the tokens obtained at login for downstream calls.
	OAuth2Client bool
}

// DefaultPolicy disables CSRF, requires authentication for every request
// and enables OAuth2 login and OAuth2 client support.
func DefaultPolicy() Policy {
	return Policy{
		CSRF:         false,
		AnyRequest:   Authenticated,
		OAuth2Login:  true,
		OAuth2Client: true,
	}
}

var (
	ErrCSRFUnsupported = errors.New("csrf protection is not available")
	ErrNoEntryPoint    = errors.New("authenticated requests need oauth2 login as entry point")
	ErrNoRegistrations = errors.New("oauth2 requires at least one client registration")
)

// Validate reports whether a chain can be built from the policy with the
// given number of client registrations.
func (p Policy) Validate(registrations int) error {
	switch p.AnyRequest {
	case Authenticated, PermitAll:
	default:
		return fmt.Errorf("unknown authorization rule %q", p.AnyRequest)
	}

	if p.CSRF {
		return ErrCSRFUnsupported
	}
	if p.AnyRequest == Authenticated && !p.OAuth2Login {
		return ErrNoEntryPoint
	}
	if (p.OAuth2Login || p.OAuth2Client) && registrations == 0 {
		return ErrNoRegistrations
	}
	return nil
}

// Fields renders the policy as log fields.
func (p Policy) Fields() map[string]any {
	return map[string]any{
		"csrf":          p.CSRF,
		"any_request":   string(p.AnyRequest),
		"oauth2_login":  p.OAuth2Login,
		"oauth2_client": p.OAuth2Client,
	}
}
