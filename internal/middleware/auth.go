package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"oauth-demo/internal/auth"
	"oauth-demo/internal/logger"
	"oauth-demo/internal/session"
)

// unexported, collision-proof context key
type sessionContextKeyType struct{}

var sessionKey = sessionContextKeyType{}

// SessionFromContext returns the authenticated session of the request.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}

// PrincipalFromContext returns the authenticated principal of the request.
func PrincipalFromContext(ctx context.Context) (auth.Identity, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return auth.Identity{}, false
	}
	return s.Principal, true
}

type Options struct {
	// IdleTimeout is how far each authenticated request pushes the idle deadline.
	IdleTimeout time.Duration

	// Permit reports requests that pass without a session.
	Permit func(r *http.Request) bool

	// EntryPoint answers unauthenticated requests.
	EntryPoint http.Handler
}

type AuthMiddleware struct {
	Store session.Store

	opts Options
	now  func() time.Time
}

func NewAuthMiddleware(store session.Store, opts Options) *AuthMiddleware {
	if opts.Permit == nil {
		opts.Permit = func(*http.Request) bool { return false }
	}
	if opts.EntryPoint == nil {
		opts.EntryPoint = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	return &AuthMiddleware{Store: store, opts: opts, now: time.Now}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.Permit(r) {
			next.ServeHTTP(w, r)
			return
		}

		// 1. Read session cookie
		sessionID, ok := session.IDFromRequest(r)
		if !ok {
			a.opts.EntryPoint.ServeHTTP(w, r)
			return
		}

		// 2. Load session
		sess, err := a.Store.Get(r.Context(), sessionID)
		if err != nil {
			logger.Error("session lookup failed", map[string]any{"error": err.Error()})
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if sess == nil {
			a.challenge(w, r)
			return
		}

		// 3. Enforce idle and absolute expiry
		now := a.now()
		if sess.Expired(now) {
			_ = a.Store.Delete(r.Context(), sessionID)
			a.challenge(w, r)
			return
		}

		// 4. Slide the idle deadline
		sess.Touch(now, a.opts.IdleTimeout)
		if err := a.Store.Update(r.Context(), *sess); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				a.challenge(w, r)
				return
			}
			logger.Warn("session touch failed", map[string]any{"error": err.Error()})
		}

		// 5. Continue with the session on the context
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// challenge drops the stale cookie and hands over to the entry point.
func (a *AuthMiddleware) challenge(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, session.DefaultCookieOptions)
	a.opts.EntryPoint.ServeHTTP(w, r)
}

// LoginEntryPoint redirects browsers to loginURL after remembering the
// request. XHR callers get a plain 401 instead of a redirect.
func LoginEntryPoint(loginURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		session.SaveRequest(w, r)
		http.Redirect(w, r, loginURL, http.StatusFound)
	})
}
