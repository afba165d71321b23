package auth

// Identity is the authenticated principal produced by an OAuth2 login.
// It holds what the provider asserted and nothing the service decided.
type Identity struct {
	Provider      string         `json:"provider"`       // registration name, e.g. "google"
	Subject       string         `json:"subject"`        // provider-scoped user id (principal name)
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified,omitempty"`
	Name          string         `json:"name,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"` // raw claims or user-info attributes
}
