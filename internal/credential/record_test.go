package credential

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harbordocs/docdrive/internal/credfile"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{EnvAppKey, EnvAppSecret, EnvAccessToken, EnvAccessLegacy, EnvRefreshToken, EnvAllowFallback} {
		t.Setenv(key, "")
	}
}

func TestLoadRecord_EnvironmentWinsOverFile(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvAccessToken, "env-access")

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, credfile.Save(path, &credfile.Cache{
		AccessToken:  "file-access",
		RefreshToken: "file-refresh",
		LastRefresh:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	rec, err := LoadRecord(EnvSource{}, FileSource{Path: path})
	require.NoError(t, err)

	// Env-sourced access token survives; the file only fills the gaps.
	assert.Equal(t, "env-access", rec.AccessToken)
	assert.Equal(t, "file-refresh", rec.RefreshToken)
	assert.False(t, rec.LastRefresh.IsZero())
}

func TestLoadRecord_LegacyAlias(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvAccessLegacy, "legacy-access")

	rec, err := LoadRecord(EnvSource{})
	require.NoError(t, err)
	assert.Equal(t, "legacy-access", rec.AccessToken)
}

func TestLoadRecord_CanonicalNameWinsOverAlias(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvAccessToken, "canonical")
	t.Setenv(EnvAccessLegacy, "alias")

	rec, err := LoadRecord(EnvSource{})
	require.NoError(t, err)
	assert.Equal(t, "canonical", rec.AccessToken)
}

func TestLoadRecord_MissingFileContributesNothing(t *testing.T) {
	clearCredentialEnv(t)

	rec, err := LoadRecord(EnvSource{}, FileSource{Path: filepath.Join(t.TempDir(), "absent.json")})
	require.NoError(t, err)
	assert.Empty(t, rec.AccessToken)
	assert.Empty(t, rec.RefreshToken)
}

func TestAllowFallbackFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	assert.True(t, AllowFallbackFromEnv(), "default is true")

	t.Setenv(EnvAllowFallback, "false")
	assert.False(t, AllowFallbackFromEnv())

	t.Setenv(EnvAllowFallback, "true")
	assert.True(t, AllowFallbackFromEnv())

	t.Setenv(EnvAllowFallback, "not-a-bool")
	assert.True(t, AllowFallbackFromEnv(), "unparseable value falls back to default")
}
