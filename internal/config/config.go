// Package config implements TOML configuration loading with layered
// overrides (defaults -> config file -> environment) and validation.
// Secrets are never read from the config file: the OAuth client secret,
// the session signing secret, and the vault key come from the environment
// only, so a committed config file can never leak credentials.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	OAuth   OAuthConfig   `toml:"oauth"`
	Session SessionConfig `toml:"session"`
	Storage StorageConfig `toml:"storage"`
	Limits  Limits        `toml:"limits"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`

	// Secrets, populated from environment variables only.
	Secrets Secrets `toml:"-"`
}

// ServerConfig controls the HTTP listener and cookie behavior.
type ServerConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	FrontendURL   string `toml:"frontend_url"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// OAuthConfig identifies the registered Google OAuth application.
// The client secret lives in Secrets, not here.
type OAuthConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURL string `toml:"redirect_url"`
}

// SessionConfig controls the session cookie issued after login.
type SessionConfig struct {
	CookieName string `toml:"cookie_name"`
	TTL        string `toml:"ttl"`
}

// StorageConfig locates the user record database and the per-user
// download namespace.
type StorageConfig struct {
	Root   string `toml:"root"`
	DBPath string `toml:"db_path"`
}

// Limits are the hard ceilings on scanning and downloading. Breaching any
// of them aborts the operation rather than degrading it.
type Limits struct {
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"`
	MaxScanFolders   int   `toml:"max_scan_folders"`
	MaxScanFiles     int   `toml:"max_scan_files"`
	MaxDownloadFiles int   `toml:"max_download_files"`
}

// NetworkConfig controls timeouts on calls to the Drive API. Durations are
// strings in the file ("5s") and parsed during validation.
type NetworkConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	RequestTimeout  string `toml:"request_timeout"`
	DownloadTimeout string `toml:"download_timeout"`
}

// LoggingConfig controls log output: level and format.
// Format "auto" picks text on a terminal and JSON otherwise.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Secrets holds values sourced exclusively from environment variables.
type Secrets struct {
	OAuthClientSecret string
	SessionSecret     string
	VaultKey          string
}

// ConnectTimeoutDuration returns the parsed connect timeout.
// Validate guarantees the value parses, so errors are ignored here.
func (n NetworkConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.ConnectTimeout)
	return d
}

// RequestTimeoutDuration returns the parsed metadata/listing timeout.
func (n NetworkConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.RequestTimeout)
	return d
}

// DownloadTimeoutDuration returns the parsed streaming download timeout.
func (n NetworkConfig) DownloadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.DownloadTimeout)
	return d
}

// TTLDuration returns the parsed session lifetime.
func (s SessionConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(s.TTL)
	return d
}
