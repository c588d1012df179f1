package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://api.dropboxapi.com/2", cfg.Provider.APIBaseURL)
	assert.Equal(t, "https://api.dropbox.com/oauth2/token", cfg.Provider.TokenURL)
	assert.NotEmpty(t, cfg.DatabasePath)
	assert.NotEmpty(t, cfg.CredentialPath)

	require.NoError(t, Validate(cfg))
}

func TestLoad_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9090"
database_path = "/var/lib/docdrive/state.db"
credential_cache_path = "/var/lib/docdrive/credentials.json"
log_level = "debug"

[provider]
api_base_url = "https://api.example.com/2"
token_url = "https://api.example.com/oauth2/token"
root_path = "/clients"
accounts = ["acct-1", "acct-2"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/clients", cfg.Provider.RootPath)
	assert.Equal(t, []string{"acct-1", "acct-2"}, cfg.Provider.Accounts)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr = ":9999"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "https://api.dropboxapi.com/2", cfg.Provider.APIBaseURL)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr = = ":9999"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"empty credential path", func(c *Config) { c.CredentialPath = "" }, true},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, true},
		{"empty log level allowed", func(c *Config) { c.LogLevel = "" }, false},
		{"empty api base url", func(c *Config) { c.Provider.APIBaseURL = "" }, true},
		{"empty token url", func(c *Config) { c.Provider.TokenURL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/docdrive/config.toml")
	t.Setenv(EnvListenAddr, ":7070")
	t.Setenv(EnvDatabasePath, "/data/state.db")
	t.Setenv(EnvCredentialPath, "/data/credentials.json")

	env := ReadEnvOverrides()
	assert.Equal(t, "/etc/docdrive/config.toml", env.ConfigPath)
	assert.Equal(t, ":7070", env.ListenAddr)
	assert.Equal(t, "/data/state.db", env.DatabasePath)
	assert.Equal(t, "/data/credentials.json", env.CredentialPath)
}

func TestResolve_PrecedenceChain(t *testing.T) {
	dir := t.TempDir()

	filePath := filepath.Join(dir, "from-file.toml")
	require.NoError(t, os.WriteFile(filePath, []byte(`listen_addr = ":1111"`), 0o644))

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Resolve(EnvOverrides{}, filePath, "")
		require.NoError(t, err)
		assert.Equal(t, ":1111", cfg.ListenAddr)
	})

	t.Run("env over file", func(t *testing.T) {
		cfg, err := Resolve(EnvOverrides{ListenAddr: ":2222"}, filePath, "")
		require.NoError(t, err)
		assert.Equal(t, ":2222", cfg.ListenAddr)
	})

	t.Run("cli over env", func(t *testing.T) {
		cfg, err := Resolve(EnvOverrides{ListenAddr: ":2222"}, filePath, ":3333")
		require.NoError(t, err)
		assert.Equal(t, ":3333", cfg.ListenAddr)
	})

	t.Run("env names the config file", func(t *testing.T) {
		cfg, err := Resolve(EnvOverrides{ConfigPath: filePath}, "", "")
		require.NoError(t, err)
		assert.Equal(t, ":1111", cfg.ListenAddr)
	})

	t.Run("cli config path wins over env config path", func(t *testing.T) {
		otherPath := filepath.Join(dir, "other.toml")
		require.NoError(t, os.WriteFile(otherPath, []byte(`listen_addr = ":4444"`), 0o644))

		cfg, err := Resolve(EnvOverrides{ConfigPath: filePath}, otherPath, "")
		require.NoError(t, err)
		assert.Equal(t, ":4444", cfg.ListenAddr)
	})
}
