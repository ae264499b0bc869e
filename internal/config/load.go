package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Environment variable names. Non-secret variables override the config
// file; secret variables are the only source for their values.
const (
	EnvConfig      = "DRIVEBOOKS_CONFIG"
	EnvListenAddr  = "DRIVEBOOKS_LISTEN_ADDR"
	EnvStorageRoot = "DRIVEBOOKS_STORAGE_ROOT"
	EnvDBPath      = "DRIVEBOOKS_DB_PATH"
	EnvFrontendURL = "DRIVEBOOKS_FRONTEND_URL"

	EnvSessionSecret     = "DRIVEBOOKS_SESSION_SECRET"
	EnvVaultKey          = "DRIVEBOOKS_VAULT_KEY"
	EnvOAuthClientID     = "GOOGLE_CLIENT_ID"
	EnvOAuthClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvOAuthRedirectURL  = "GOOGLE_REDIRECT_URL"
)

// Load reads and parses a TOML config file, applies environment overrides,
// validates the result, and returns it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise starts
// from defaults. Environment overrides and validation apply either way,
// so a fully env-configured deployment needs no file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// applyEnvOverrides copies environment values over file values. Secrets
// have no file counterpart and are read here exclusively.
func applyEnvOverrides(cfg *Config) {
	setIfPresent(EnvListenAddr, &cfg.Server.ListenAddr)
	setIfPresent(EnvFrontendURL, &cfg.Server.FrontendURL)
	setIfPresent(EnvStorageRoot, &cfg.Storage.Root)
	setIfPresent(EnvDBPath, &cfg.Storage.DBPath)
	setIfPresent(EnvOAuthClientID, &cfg.OAuth.ClientID)
	setIfPresent(EnvOAuthRedirectURL, &cfg.OAuth.RedirectURL)

	cfg.Secrets.SessionSecret = os.Getenv(EnvSessionSecret)
	cfg.Secrets.VaultKey = os.Getenv(EnvVaultKey)
	cfg.Secrets.OAuthClientSecret = os.Getenv(EnvOAuthClientSecret)
}

func setIfPresent(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
