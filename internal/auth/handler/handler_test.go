package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"oauth-demo/internal/auth"
	"oauth-demo/internal/auth/client"
	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/auth/provider/providertest"
	"oauth-demo/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *session.MemoryStore
	fake   *providertest.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := providertest.NewFake("google")
	reg, err := provider.NewRegistry(fake, providertest.NewFake("github"))
	require.NoError(t, err)

	store := session.NewMemoryStore()
	h := NewHandler(reg, store, client.NewManager(reg, store), Options{
		IdleTimeout:     30 * time.Minute,
		AbsoluteTimeout: 24 * time.Hour,
	})

	r := gin.New()
	h.RegisterRoutes(r)

	return &testEnv{router: r, store: store, fake: fake}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callbackRequest(query string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/google?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestAuthorize(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/oauth2/authorization/google", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)

	state := findCookie(rec, stateCookieName)
	pkce := findCookie(rec, pkceCookieName)
	require.NotNil(t, state)
	require.NotNil(t, pkce)
	assert.True(t, state.HttpOnly)
	assert.True(t, state.Secure)

	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(pkce.Value), loc.Query().Get("code_challenge"))
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
}

func TestAuthorize_UnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/oauth2/authorization/facebook", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_Success(t *testing.T) {
	env := newTestEnv(t)

	saved := httptest.NewRecorder()
	session.SaveRequest(saved, httptest.NewRequest(http.MethodGet, "/demo", nil))

	rec := env.do(callbackRequest("state=abc&code=the-code",
		&http.Cookie{Name: stateCookieName, Value: "abc"},
		&http.Cookie{Name: pkceCookieName, Value: "the-verifier"},
		saved.Result().Cookies()[0],
	))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/demo", rec.Header().Get("Location"))

	exchanges := env.fake.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, providertest.Exchange{Code: "the-code", Verifier: "the-verifier"}, exchanges[0])

	sc := findCookie(rec, session.CookieName)
	require.NotNil(t, sc)
	assert.NotEmpty(t, sc.Value)

	sess, err := env.store.Get(context.Background(), sc.Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.Principal.Subject)
	assert.Equal(t, "google", sess.Principal.Provider)
	require.Contains(t, sess.Tokens, "google")
	assert.Equal(t, "access-1", sess.Tokens["google"].AccessToken)

	for _, name := range []string{stateCookieName, pkceCookieName} {
		c := findCookie(rec, name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge, name)
	}
}

func TestCallback_WithoutClientManager(t *testing.T) {
	fake := providertest.NewFake("google")
	reg, err := provider.NewRegistry(fake)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	h := NewHandler(reg, store, nil, Options{IdleTimeout: time.Minute, AbsoluteTimeout: time.Hour})
	r := gin.New()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, callbackRequest("state=abc&code=c",
		&http.Cookie{Name: stateCookieName, Value: "abc"},
		&http.Cookie{Name: pkceCookieName, Value: "v"},
	))
	require.Equal(t, http.StatusFound, rec.Code)

	sc := findCookie(rec, session.CookieName)
	require.NotNil(t, sc)

	sess, err := store.Get(context.Background(), sc.Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Empty(t, sess.Tokens)
}

func TestCallback_DefaultTarget(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(callbackRequest("state=abc&code=c",
		&http.Cookie{Name: stateCookieName, Value: "abc"},
		&http.Cookie{Name: pkceCookieName, Value: "v"},
	))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_Failures(t *testing.T) {
	stateCookie := &http.Cookie{Name: stateCookieName, Value: "abc"}
	pkceCookie := &http.Cookie{Name: pkceCookieName, Value: "v"}

	tests := []struct {
		name     string
		query    string
		cookies  []*http.Cookie
		exchange error
	}{
		{name: "missing state cookie", query: "state=abc&code=c", cookies: []*http.Cookie{pkceCookie}},
		{name: "state mismatch", query: "state=zzz&code=c", cookies: []*http.Cookie{stateCookie, pkceCookie}},
		{name: "provider error", query: "state=abc&error=access_denied", cookies: []*http.Cookie{stateCookie, pkceCookie}},
		{name: "missing code", query: "state=abc", cookies: []*http.Cookie{stateCookie, pkceCookie}},
		{name: "missing verifier", query: "state=abc&code=c", cookies: []*http.Cookie{stateCookie}},
		{name: "exchange failure", query: "state=abc&code=c", cookies: []*http.Cookie{stateCookie, pkceCookie}, exchange: errors.New("invalid_grant")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fake.Err = tt.exchange

			rec := env.do(callbackRequest(tt.query, tt.cookies...))

			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/login?error", rec.Header().Get("Location"))
			assert.Nil(t, findCookie(rec, session.CookieName))
		})
	}
}

func TestCallback_UnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/login/oauth2/code/facebook?state=a&code=b", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_ReplacesExistingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old, err := session.New(auth.Identity{Provider: "google", Subject: "old"}, time.Now(), time.Hour, 2*time.Hour)
	require.NoError(t, err)
	require.NoError(t, env.store.Create(ctx, old))

	rec := env.do(callbackRequest("state=abc&code=c",
		&http.Cookie{Name: stateCookieName, Value: "abc"},
		&http.Cookie{Name: pkceCookieName, Value: "v"},
		&http.Cookie{Name: session.CookieName, Value: old.ID},
	))
	require.Equal(t, http.StatusFound, rec.Code)

	got, err := env.store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	sc := findCookie(rec, session.CookieName)
	require.NotNil(t, sc)
	assert.NotEqual(t, old.ID, sc.Value)
}

func TestLoginPage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, `href="/oauth2/authorization/github"`)
	assert.Contains(t, body, `href="/oauth2/authorization/google"`)
	assert.NotContains(t, body, "Login failed")
}

func TestLoginPage_Notices(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/login?error", nil))
	assert.Contains(t, rec.Body.String(), "Login failed")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/login?logout", nil))
	assert.Contains(t, rec.Body.String(), "signed out")
}

func TestLogout(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodGet} {
		t.Run(method, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			sess, err := session.New(auth.Identity{Provider: "google", Subject: "u"}, time.Now(), time.Hour, 2*time.Hour)
			require.NoError(t, err)
			require.NoError(t, env.store.Create(ctx, sess))

			// No CSRF token anywhere in the request.
			req := httptest.NewRequest(method, "/logout", nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
			rec := env.do(req)

			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/login?logout", rec.Header().Get("Location"))

			got, err := env.store.Get(ctx, sess.ID)
			require.NoError(t, err)
			assert.Nil(t, got)

			sc := findCookie(rec, session.CookieName)
			require.NotNil(t, sc)
			assert.Equal(t, -1, sc.MaxAge)
		})
	}
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?logout", rec.Header().Get("Location"))
}

func TestAuthorizationURL(t *testing.T) {
	assert.Equal(t, "/oauth2/authorization/google", AuthorizationURL("google"))
}
