package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config holds CLI configuration.
//
// Token is the funnel session token. `entry` stores it in TokenFile so the
// following verify, status and draw commands run against the same session.
// The server consumes the session on draw, so the file is removed then, and
// also whenever the server reports the session as gone.
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	AdminKey  string
	Output    string
	Verbose   bool
}

// API error codes meaning the saved session can never be used again
var spentSessionCodes = []string{"SESSION_EXPIRED", "OTP_EXPIRED"}

// DefaultConfig returns a Config populated from FUNNELCTL_* environment variables
func DefaultConfig() *Config {
	return &Config{
		ServerURL: envOr("FUNNELCTL_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("FUNNELCTL_TOKEN"),
		TokenFile: envOr("FUNNELCTL_TOKEN_FILE", defaultTokenFile()),
		AdminKey:  os.Getenv("FUNNELCTL_ADMIN_KEY"),
		Output:    "text",
	}
}

// LoadToken reads the saved session token unless one was given by flag or env
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken remembers the session started by `entry`
func (c *Config) SaveToken(token string) error {
	c.Token = token
	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.TokenFile, []byte(token), 0o600)
}

// ClearToken forgets the saved session
func (c *Config) ClearToken() error {
	c.Token = ""
	if err := os.Remove(c.TokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// dropSpentSession clears the saved token when err says the server no longer
// has a usable session for it. err is returned unchanged.
func (c *Config) dropSpentSession(err error) error {
	for _, code := range spentSessionCodes {
		if IsCode(err, code) {
			_ = c.ClearToken()
			break
		}
	}
	return err
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".funnelctl", "token")
	}
	return filepath.Join(home, ".funnelctl", "token")
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
