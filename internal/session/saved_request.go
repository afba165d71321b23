package session

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	savedRequestCookieName = "__saved_request"
	savedRequestTTL        = 10 * time.Minute
)

// SaveRequest remembers the request URI so a completed login can return
// the browser to it. Only GET requests are remembered.
func SaveRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     savedRequestCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(r.URL.RequestURI())),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(savedRequestTTL.Seconds()),
	})
}

// SavedRequest returns the remembered URI, or fallback when none is
// present or it is not a local path.
func SavedRequest(r *http.Request, fallback string) string {
	cookie, err := r.Cookie(savedRequestCookieName)
	if err != nil {
		return fallback
	}

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return fallback
	}

	target := string(raw)
	if !isLocalPath(target) {
		return fallback
	}
	return target
}

func ClearSavedRequest(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     savedRequestCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// isLocalPath rejects anything a browser could resolve to another origin.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	return true
}
