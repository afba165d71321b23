package github

import (
	"oauth-demo/internal/auth/provider/userinfo"

	"golang.org/x/oauth2/github"
)

const (
	providerName = "github"
	userInfoURL  = "https://api.github.com/user"
)

// New initializes a GitHub registration. GitHub has no OIDC login, so the
// principal comes from the user API and is named by the numeric "id".
func New(name, clientID, clientSecret, redirectURL string, scopes []string) (*userinfo.Provider, error) {
	if name == "" {
		name = providerName
	}
	if len(scopes) == 0 {
		scopes = []string{"read:user"}
	}

	return userinfo.New(userinfo.Config{
		Name:              name,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		RedirectURL:       redirectURL,
		Scopes:            scopes,
		Endpoint:          github.Endpoint,
		UserInfoURL:       userInfoURL,
		UserNameAttribute: "id",
	})
}
