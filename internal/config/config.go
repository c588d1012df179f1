// Package config loads and validates docdrive configuration from a TOML
// file with environment overrides. Precedence, evaluated once at startup:
// defaults -> config file -> environment variables. Credential material
// (app key, tokens) is NOT configured here; the credential package owns
// its own layered sources.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default intervals and thresholds for the credential lifecycle.
const (
	// DefaultRenewalInterval is how often the background renewer refreshes
	// the access token unconditionally.
	DefaultRenewalInterval = 45 * time.Minute

	// DefaultStaleAfter is the elapsed time since last refresh beyond which
	// a token is considered possibly stale.
	DefaultStaleAfter = 50 * time.Minute
)

// Config is the full configuration tree decoded from TOML.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	DatabasePath   string   `toml:"database_path"`
	CredentialPath string   `toml:"credential_cache_path"`
	LogLevel       string   `toml:"log_level"`
	Provider       Provider `toml:"provider"`
}

// Provider configures the remote storage endpoints and the accounts whose
// change feeds are reconciled.
type Provider struct {
	APIBaseURL string `toml:"api_base_url"`
	TokenURL   string `toml:"token_url"`

	// RootPath is the remote path reconciled for each account. Empty means
	// the account root.
	RootPath string `toml:"root_path"`

	// Accounts lists the remote account identifiers reconciled by the
	// one-shot sync command. Webhook-driven reconciliation uses the
	// identifiers in the notification payload instead.
	Accounts []string `toml:"accounts"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		DatabasePath:   defaultStatePath("state.db"),
		CredentialPath: defaultStatePath("credentials.json"),
		LogLevel:       "info",
		Provider: Provider{
			APIBaseURL: "https://api.dropboxapi.com/2",
			TokenURL:   "https://api.dropbox.com/oauth2/token",
		},
	}
}

// defaultStatePath resolves a file under the user's state directory,
// falling back to the working directory when home cannot be determined.
func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}

	return filepath.Join(home, ".local", "share", "docdrive", name)
}

// Validate checks a Config for fatal problems. Called after decode so a
// broken config fails at startup, not mid-operation.
func Validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}

	if cfg.DatabasePath == "" {
		return fmt.Errorf("config: database_path must not be empty")
	}

	if cfg.CredentialPath == "" {
		return fmt.Errorf("config: credential_cache_path must not be empty")
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", cfg.LogLevel)
	}

	if cfg.Provider.APIBaseURL == "" {
		return fmt.Errorf("config: provider.api_base_url must not be empty")
	}

	if cfg.Provider.TokenURL == "" {
		return fmt.Errorf("config: provider.token_url must not be empty")
	}

	return nil
}
