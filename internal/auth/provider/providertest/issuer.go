package providertest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "test-key"

// Issuer is a minimal OpenID Connect provider: discovery, JWKS, token
// endpoint (authorization_code and refresh_token grants) and user info.
type Issuer struct {
	URL      string
	ClientID string

	// Code is the only authorization code the token endpoint accepts.
	Code string

	// Claims are placed in every ID token and returned by user info.
	Claims map[string]any

	key *rsa.PrivateKey

	mu            sync.Mutex
	tokenRequests []url.Values
	issued        int
}

func NewIssuer(t testing.TB, clientID string) *Issuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	i := &Issuer{
		ClientID: clientID,
		Code:     "good-code",
		Claims: map[string]any{
			"sub":            "user-1",
			"email":          "user@example.com",
			"email_verified": true,
			"name":           "Test User",
		},
		key: key,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", i.discovery)
	mux.HandleFunc("/keys", i.keys)
	mux.HandleFunc("/token", i.token)
	mux.HandleFunc("/userinfo", i.userInfo)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	i.URL = srv.URL

	return i
}

// TokenRequests returns the forms posted to the token endpoint.
func (i *Issuer) TokenRequests() []url.Values {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]url.Values, len(i.tokenRequests))
	copy(out, i.tokenRequests)
	return out
}

func (i *Issuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                i.URL,
		"authorization_endpoint":                i.URL + "/authorize",
		"token_endpoint":                        i.URL + "/token",
		"jwks_uri":                              i.URL + "/keys",
		"userinfo_endpoint":                     i.URL + "/userinfo",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (i *Issuer) keys(w http.ResponseWriter, _ *http.Request) {
	pub := i.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (i *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	i.mu.Lock()
	i.tokenRequests = append(i.tokenRequests, r.PostForm)
	i.issued++
	n := i.issued
	i.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != i.Code || r.PostForm.Get("code_verifier") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}

		idToken, err := i.SignIDToken(nil)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "server_error"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"id_token":      idToken,
		})
	case "refresh_token":
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("refreshed-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (i *Issuer) userInfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, i.Claims)
}

// SignIDToken signs an ID token for the configured claims; overrides win.
func (i *Issuer) SignIDToken(overrides map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": i.URL,
		"aud": i.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range i.Claims {
		claims[k] = v
	}
	for k, v := range overrides {
		claims[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keyID
	return tok.SignedString(i.key)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
