package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"os"
	"sync"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// Environment variables read by NewAuthenticatorFromEnv.
const (
	EnvAuthEnabled = "R2A_AUTH_ENABLED"
	EnvAuthToken   = "R2A_AUTH_TOKEN"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled determines if authentication is required
	Enabled bool `toml:"enabled"`
	// Token is the secret token that clients must provide
	Token string `toml:"token"`
}

// Authenticator handles connection authentication.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates a new Authenticator with the given config. An
// enabled authenticator without token gets a random one.
func NewAuthenticator(config AuthConfig) *Authenticator {
	if config.Enabled && config.Token == "" {
		config.Token = GenerateToken()
	}
	return &Authenticator{
		config: config,
	}
}

// NewAuthenticatorFromEnv creates an Authenticator from R2A_AUTH_ENABLED and
// R2A_AUTH_TOKEN.
func NewAuthenticatorFromEnv() *Authenticator {
	return NewAuthenticator(AuthConfigFromEnv(AuthConfig{}))
}

// AuthConfigFromEnv overrides base with the environment, when set.
func AuthConfigFromEnv(base AuthConfig) AuthConfig {
	switch os.Getenv(EnvAuthEnabled) {
	case "true", "1":
		base.Enabled = true
	case "false", "0":
		base.Enabled = false
	}
	if token := os.Getenv(EnvAuthToken); token != "" {
		base.Token = token
	}
	return base
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// GetToken returns the current auth token (for displaying to admin).
func (a *Authenticator) GetToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken checks if the provided token matches the configured token.
// Uses constant-time comparison.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}

	if providedToken == "" {
		return ErrAuthRequired
	}

	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}

	return nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() string {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "root2avro-default-token-change-me"
	}
	return hex.EncodeToString(bytes)
}
