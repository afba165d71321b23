package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/auth/provider/providertest"
	"oauth-demo/internal/config"
	"oauth-demo/internal/security"
	"oauth-demo/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testOptions = security.Options{IdleTimeout: 30 * time.Minute, AbsoluteTimeout: 24 * time.Hour}

// browser keeps cookies between requests the way a user agent would.
type browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]string
}

func newBrowser(t *testing.T, router http.Handler) *browser {
	return &browser{t: t, router: router, cookies: map[string]string{}}
}

func (b *browser) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil)
}

// login walks the authorization code flow and returns the final response.
func (b *browser) login(registration, code string) *httptest.ResponseRecorder {
	rec := b.get("/oauth2/authorization/" + registration)
	require.Equal(b.t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(b.t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(b.t, state)

	q := url.Values{}
	q.Set("code", code)
	q.Set("state", state)
	return b.get("/login/oauth2/code/" + registration + "?" + q.Encode())
}

func newFakeRouter(t *testing.T, names ...string) (*gin.Engine, *session.MemoryStore) {
	t.Helper()

	var list []provider.OAuthProvider
	for _, n := range names {
		list = append(list, providertest.NewFake(n))
	}
	registry, err := provider.NewRegistry(list...)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	router, err := newRouter(security.DefaultPolicy(), registry, store, testOptions)
	require.NoError(t, err)
	return router, store
}

func TestDemo_Unauthenticated(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	rec := b.get("/demo")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/oauth2/authorization/google", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "Hello World")
}

func TestDemo_AfterLogin(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	b.get("/demo")
	rec := b.login("google", "code-1")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/demo", rec.Header().Get("Location"))

	rec = b.get("/demo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLogout_WithoutCSRFToken(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	b.login("google", "code-1")
	require.Equal(t, http.StatusOK, b.get("/demo").Code)

	rec := b.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?logout", rec.Header().Get("Location"))

	rec = b.get("/demo")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestStateChangingRequest_NotRejectedForCSRF(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)
	b.login("google", "code-1")

	rec := b.do(http.MethodPost, "/demo", nil)
	assert.NotEqual(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	rec := b.get("/does-not-exist")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/oauth2/authorization/google", rec.Header().Get("Location"))

	// Near misses of the login endpoints are not permitted either.
	nearMisses := []struct{ method, path string }{
		{http.MethodGet, "/oauth2/authorization/google/extra"},
		{http.MethodGet, "/login/oauth2/code/google/x/y"},
		{http.MethodGet, "/oauth2/authorization/"},
		{http.MethodPut, "/login"},
		{http.MethodDelete, "/logout"},
	}
	for _, nm := range nearMisses {
		rec := newBrowser(t, router).do(nm.method, nm.path, nil)
		assert.Equal(t, http.StatusFound, rec.Code, nm.method+" "+nm.path)
		assert.Equal(t, "/oauth2/authorization/google", rec.Header().Get("Location"), nm.method+" "+nm.path)
	}

	b.login("google", "code-1")
	rec = b.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemo_XHRUnauthenticated(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	rec := b.do(http.MethodGet, "/demo", http.Header{"X-Requested-With": {"XMLHttpRequest"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Hello World")
}

func TestMultipleRegistrations_UseLoginPage(t *testing.T) {
	router, _ := newFakeRouter(t, "google", "github")
	b := newBrowser(t, router)

	rec := b.get("/demo")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = b.get("/login")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/oauth2/authorization/google"`)
	assert.Contains(t, rec.Body.String(), `href="/oauth2/authorization/github"`)
}

func TestFailedLogin_StaysUnauthenticated(t *testing.T) {
	router, _ := newFakeRouter(t, "google")
	b := newBrowser(t, router)

	b.get("/oauth2/authorization/google")
	rec := b.get("/login/oauth2/code/google?code=x&state=forged")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?error", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusFound, b.get("/demo").Code)
}

func TestNewRouter_InvalidPolicy(t *testing.T) {
	registry, err := provider.NewRegistry()
	require.NoError(t, err)

	_, err = newRouter(security.DefaultPolicy(), registry, session.NewMemoryStore(), testOptions)
	assert.ErrorIs(t, err, security.ErrNoRegistrations)
}

func TestOIDCLogin_EndToEnd(t *testing.T) {
	issuer := providertest.NewIssuer(t, "demo-client")

	providers, err := buildProviders(context.Background(), []config.Registration{{
		Name:         "idp",
		Provider:     config.KindOIDC,
		ClientID:     issuer.ClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/login/oauth2/code/idp",
		IssuerURL:    issuer.URL,
	}})
	require.NoError(t, err)

	registry, err := provider.NewRegistry(providers...)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	router, err := newRouter(security.DefaultPolicy(), registry, store, testOptions)
	require.NoError(t, err)

	b := newBrowser(t, router)
	rec := b.get("/demo")
	require.Equal(t, "/oauth2/authorization/idp", rec.Header().Get("Location"))

	rec = b.login("idp", issuer.Code)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/demo", rec.Header().Get("Location"))

	rec = b.get("/demo")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", rec.Body.String())

	sess, err := store.Get(context.Background(), b.cookies[session.CookieName])
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.Principal.Subject)
	assert.Equal(t, "user@example.com", sess.Principal.Email)
	require.Contains(t, sess.Tokens, "idp")
	assert.Equal(t, "refresh-1", sess.Tokens["idp"].RefreshToken)

	requests := issuer.TokenRequests()
	require.Len(t, requests, 1)
	assert.NotEmpty(t, requests[0].Get("code_verifier"))
}
