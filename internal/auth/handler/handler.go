package handler

import (
	"net/http"
	"time"

	"oauth-demo/internal/auth/client"
	"oauth-demo/internal/auth/provider"
	"oauth-demo/internal/config"
	"oauth-demo/internal/logger"
	"oauth-demo/internal/session"

	"github.com/gin-gonic/gin"
)

// Paths of the login flow. They are reachable without a session.
const (
	LoginPath         = "/login"
	LogoutPath        = "/logout"
	AuthorizationPath = "/oauth2/authorization/"
	CallbackPath      = config.CallbackPath

	loginErrorPath  = LoginPath + "?error"
	loginLogoutPath = LoginPath + "?logout"
	defaultTarget   = "/"
)

// AuthorizationURL is where a browser starts the login for a registration.
func AuthorizationURL(registration string) string {
	return AuthorizationPath + registration
}

// Options carries the session lifetimes applied to new sessions.
type Options struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
}

type Handler struct {
	providers    *provider.Registry
	sessionStore session.Store
	clients      *client.Manager
	opts         Options
	now          func() time.Time
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	clients *client.Manager,
	opts Options,
) *Handler {
	return &Handler{
		providers:    registry,
		sessionStore: sessionStore,
		clients:      clients,
		opts:         opts,
		now:          time.Now,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(loginTemplate)

	r.GET(AuthorizationPath+":provider", h.authorize)
	r.GET(CallbackPath+":provider", h.callback)
	r.GET(LoginPath, h.loginPage)
	r.GET(LogoutPath, h.Logout)
	r.POST(LogoutPath, h.Logout)
}

func (h *Handler) authorize(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	state, err := generateState(c)
	if err != nil {
		logger.Error("oauth2 state generation failed", map[string]any{"error": err.Error()})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	_, codeChallenge := generatePKCE(c)

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	stateOK := validateState(c)
	codeVerifier := getPKCEVerifier(c)
	clearFlowCookies(c)

	if !stateOK {
		h.loginFailed(c, providerName, "invalid state", nil)
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		h.loginFailed(c, providerName, "provider returned error", map[string]any{
			"error": errParam,
			"desc":  c.Query("error_description"),
		})
		return
	}

	code := c.Query("code")
	if code == "" {
		h.loginFailed(c, providerName, "missing code", nil)
		return
	}

	if codeVerifier == "" {
		h.loginFailed(c, providerName, "missing pkce verifier", nil)
		return
	}

	identity, token, err := p.ExchangeCode(c.Request.Context(), code, codeVerifier)
	if err != nil {
		h.loginFailed(c, providerName, "code exchange failed", map[string]any{"error": err.Error()})
		return
	}

	// A login always starts a new session; drop the one the browser had.
	if oldID, ok := session.IDFromRequest(c.Request); ok {
		_ = h.sessionStore.Delete(c.Request.Context(), oldID)
	}

	sess, err := session.New(*identity, h.now(), h.opts.IdleTimeout, h.opts.AbsoluteTimeout)
	if err != nil {
		logger.Error("session creation failed", map[string]any{"error": err.Error()})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		logger.Error("session persist failed", map[string]any{"error": err.Error()})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// clients is nil when the authorized client support is switched off.
	if h.clients != nil {
		if err := h.clients.Save(c.Request.Context(), sess.ID, providerName, token); err != nil {
			logger.Error("authorized client save failed", map[string]any{
				"provider": providerName,
				"error":    err.Error(),
			})
			_ = h.sessionStore.Delete(c.Request.Context(), sess.ID)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}

	session.SetCookie(c.Writer, sess.ID, sess.AbsoluteExpiresAt, session.DefaultCookieOptions)

	target := session.SavedRequest(c.Request, defaultTarget)
	session.ClearSavedRequest(c.Writer)

	logger.Info("login succeeded", map[string]any{
		"provider":  providerName,
		"subject":   identity.Subject,
		"client_ip": c.ClientIP(),
	})

	c.Redirect(http.StatusFound, target)
}

func (h *Handler) loginFailed(c *gin.Context, providerName, reason string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["provider"] = providerName
	fields["reason"] = reason
	logger.Warn("login failed", fields)

	c.Redirect(http.StatusFound, loginErrorPath)
}

func (h *Handler) loginPage(c *gin.Context) {
	_, failed := c.GetQuery("error")
	_, loggedOut := c.GetQuery("logout")

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, loginTemplateName, loginPageData{
		Providers: h.providers.Names(),
		Error:     failed,
		Logout:    loggedOut,
	})
}

// Logout ends the session. It is idempotent and needs no CSRF token.
func (h *Handler) Logout(c *gin.Context) {
	if id, ok := session.IDFromRequest(c.Request); ok {
		if err := h.sessionStore.Delete(c.Request.Context(), id); err != nil {
			logger.Warn("session delete failed", map[string]any{"error": err.Error()})
		}
		logger.Info("logout", map[string]any{"client_ip": c.ClientIP()})
	}

	session.ClearCookie(c.Writer, session.DefaultCookieOptions)
	c.Redirect(http.StatusFound, loginLogoutPath)
}
