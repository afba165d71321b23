package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the registration loader.
const (
	KindGoogle   = "google"
	KindKeycloak = "keycloak"
	KindGitHub   = "github"
	KindOIDC     = "oidc"
	KindUserInfo = "userinfo"
)

// CallbackPath is the path prefix of the login callback; the registration
// name is appended.
const CallbackPath = "/login/oauth2/code/"

var registrationName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Registration describes one OAuth2 client registration.
type Registration struct {
	Name         string   `yaml:"name"`
	Provider     string   `yaml:"provider"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`

	// OIDC discovery (oidc, google, keycloak).
	IssuerURL     string `yaml:"issuer_url"`
	PublicBaseURL string `yaml:"public_base_url"`

	// Plain OAuth2 endpoints (userinfo).
	AuthURL           string `yaml:"auth_url"`
	TokenURL          string `yaml:"token_url"`
	UserInfoURL       string `yaml:"userinfo_url"`
	UserNameAttribute string `yaml:"user_name_attribute"`
}

type registrationsFile struct {
	Registrations []Registration `yaml:"registrations"`
}

type Config struct {
	AppPort string
	BaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionIdleTimeout     time.Duration
	SessionAbsoluteTimeout time.Duration

	Registrations []Registration
}

// Load reads configuration from the environment and, when
// OAUTH2_CLIENTS_FILE is set, from a YAML registrations file.
func Load() (Config, error) {
	cfg := Config{
		AppPort: getEnv("APP_PORT", "8080"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SessionIdleTimeout:     30 * time.Minute,
		SessionAbsoluteTimeout: 24 * time.Hour,
	}
	cfg.BaseURL = strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:"+cfg.AppPort), "/")

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	var err error
	if cfg.SessionIdleTimeout, err = durationEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionAbsoluteTimeout, err = durationEnv("SESSION_ABSOLUTE_TIMEOUT", cfg.SessionAbsoluteTimeout); err != nil {
		return Config{}, err
	}

	if path := os.Getenv("OAUTH2_CLIENTS_FILE"); path != "" {
		regs, err := LoadRegistrations(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Registrations = append(cfg.Registrations, regs...)
	}
	cfg.Registrations = append(cfg.Registrations, envRegistrations()...)

	for i := range cfg.Registrations {
		cfg.Registrations[i].applyDefaults(cfg.BaseURL)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadRegistrations parses a YAML registrations file. ${VAR} references
// are expanded from the environment before parsing.
func LoadRegistrations(path string) ([]Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read OAUTH2_CLIENTS_FILE: %w", err)
	}

	var f registrationsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse OAUTH2_CLIENTS_FILE: %w", err)
	}

	return f.Registrations, nil
}

// envRegistrations builds the google and keycloak registrations from their
// dedicated variables, when present.
func envRegistrations() []Registration {
	var regs []Registration

	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		regs = append(regs, Registration{
			Name:         KindGoogle,
			Provider:     KindGoogle,
			ClientID:     id,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		})
	}

	if issuer := os.Getenv("KEYCLOAK_ISSUER"); issuer != "" {
		regs = append(regs, Registration{
			Name:          KindKeycloak,
			Provider:      KindKeycloak,
			IssuerURL:     issuer,
			ClientID:      os.Getenv("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  os.Getenv("KEYCLOAK_CLIENT_SECRET"),
			RedirectURL:   os.Getenv("KEYCLOAK_REDIRECT_URL"),
			PublicBaseURL: os.Getenv("KEYCLOAK_PUBLIC_BASE_URL"),
		})
	}

	return regs
}

func (r *Registration) applyDefaults(baseURL string) {
	if r.Provider == "" {
		r.Provider = KindOIDC
	}
	if r.Name == "" {
		r.Name = r.Provider
	}
	if r.RedirectURL == "" {
		r.RedirectURL = baseURL + CallbackPath + r.Name
	}
}

// Validate checks that the configuration can build a working filter chain.
func (c *Config) Validate() error {
	if c.AppPort == "" {
		return fmt.Errorf("APP_PORT cannot be empty")
	}

	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.SessionAbsoluteTimeout <= 0 {
		return fmt.Errorf("SESSION_ABSOLUTE_TIMEOUT must be positive")
	}

	if c.SessionIdleTimeout > c.SessionAbsoluteTimeout {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT cannot exceed SESSION_ABSOLUTE_TIMEOUT")
	}

	seen := make(map[string]bool, len(c.Registrations))
	for _, r := range c.Registrations {
		if seen[r.Name] {
			return fmt.Errorf("duplicate oauth2 registration %q", r.Name)
		}
		seen[r.Name] = true

		if err := r.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the fields required by the registration's provider kind.
func (r Registration) Validate() error {
	if !registrationName.MatchString(r.Name) {
		return fmt.Errorf("oauth2 registration name %q is invalid", r.Name)
	}

	if r.ClientID == "" {
		return fmt.Errorf("oauth2 registration %q: client_id is required", r.Name)
	}

	switch r.Provider {
	case KindGoogle, KindGitHub:
		if r.ClientSecret == "" {
			return fmt.Errorf("oauth2 registration %q: client_secret is required", r.Name)
		}
	case KindKeycloak, KindOIDC:
		if r.IssuerURL == "" {
			return fmt.Errorf("oauth2 registration %q: issuer_url is required", r.Name)
		}
	case KindUserInfo:
		if r.AuthURL == "" || r.TokenURL == "" || r.UserInfoURL == "" {
			return fmt.Errorf("oauth2 registration %q: auth_url, token_url and userinfo_url are required", r.Name)
		}
	default:
		return fmt.Errorf("oauth2 registration %q: unknown provider %q", r.Name, r.Provider)
	}

	return nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
