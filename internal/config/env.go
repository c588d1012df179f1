package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig         = "DOCDRIVE_CONFIG"
	EnvListenAddr     = "DOCDRIVE_LISTEN_ADDR"
	EnvDatabasePath   = "DOCDRIVE_DATABASE_PATH"
	EnvCredentialPath = "DOCDRIVE_CREDENTIAL_CACHE"
)

// EnvOverrides holds values derived from environment variables.
// These are resolved by ReadEnvOverrides and made available to callers.
type EnvOverrides struct {
	ConfigPath     string // DOCDRIVE_CONFIG: override config file path
	ListenAddr     string // DOCDRIVE_LISTEN_ADDR: webhook listener address
	DatabasePath   string // DOCDRIVE_DATABASE_PATH: metadata store path
	CredentialPath string // DOCDRIVE_CREDENTIAL_CACHE: credential cache file
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		ListenAddr:     os.Getenv(EnvListenAddr),
		DatabasePath:   os.Getenv(EnvDatabasePath),
		CredentialPath: os.Getenv(EnvCredentialPath),
	}
}
