// Package credential owns the OAuth credential lifecycle: layered loading of
// the credential record, on-demand token validation and refresh under a
// process-wide lock, background renewal, and the fallback policy for
// permanently revoked refresh tokens.
package credential

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/harbordocs/docdrive/internal/credfile"
)

// Recognized environment variables. ACCESS_TOKEN has a legacy alias from
// deployments that predate refresh tokens.
const (
	EnvAppKey        = "APP_KEY"
	EnvAppSecret     = "APP_SECRET"
	EnvAccessToken   = "ACCESS_TOKEN"
	EnvAccessLegacy  = "DROPBOX_TOKEN"
	EnvRefreshToken  = "REFRESH_TOKEN"
	EnvAllowFallback = "ALLOW_ACCESS_TOKEN_FALLBACK"
)

// Record is the in-memory credential state. The environment and the cache
// file are views consumed at load time; after Load the Record owned by the
// Manager is the single source of truth.
type Record struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
	LastRefresh  time.Time
}

// Source fills credential fields from one layer. Fill must only set fields
// that are still empty; earlier, higher-priority sources win. The ordered
// source list replaces ad hoc conditional overwrites and is the documented
// configuration contract: environment first, cache file second.
type Source interface {
	Name() string
	Fill(r *Record) error
}

// LoadRecord evaluates the ordered source list once and returns the
// resulting record. Evaluation stops on the first source error.
func LoadRecord(sources ...Source) (*Record, error) {
	r := &Record{}

	for _, s := range sources {
		if err := s.Fill(r); err != nil {
			return nil, fmt.Errorf("credential: source %s: %w", s.Name(), err)
		}
	}

	return r, nil
}

// EnvSource fills fields from process environment variables.
type EnvSource struct{}

func (EnvSource) Name() string { return "environment" }

func (EnvSource) Fill(r *Record) error {
	setIfEmpty(&r.AppKey, os.Getenv(EnvAppKey))
	setIfEmpty(&r.AppSecret, os.Getenv(EnvAppSecret))
	setIfEmpty(&r.AccessToken, os.Getenv(EnvAccessToken))
	setIfEmpty(&r.AccessToken, os.Getenv(EnvAccessLegacy))
	setIfEmpty(&r.RefreshToken, os.Getenv(EnvRefreshToken))

	return nil
}

// FileSource fills fields from the credential cache file. A missing file is
// not an error; the layer simply contributes nothing.
type FileSource struct {
	Path string
}

func (FileSource) Name() string { return "cache file" }

func (s FileSource) Fill(r *Record) error {
	c, err := credfile.Load(s.Path)
	if err != nil {
		return err
	}

	if c == nil {
		return nil
	}

	setIfEmpty(&r.AccessToken, c.AccessToken)
	setIfEmpty(&r.RefreshToken, c.RefreshToken)

	if r.LastRefresh.IsZero() {
		r.LastRefresh = c.LastRefresh
	}

	return nil
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// AllowFallbackFromEnv reads ALLOW_ACCESS_TOKEN_FALLBACK. Default is true:
// a revoked refresh token still permits falling back to a live-probed
// cached access token unless explicitly disabled.
func AllowFallbackFromEnv() bool {
	v := os.Getenv(EnvAllowFallback)
	if v == "" {
		return true
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}

	return b
}
