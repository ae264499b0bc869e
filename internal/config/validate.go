package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so a
// misconfigured deployment gets one complete report.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateOAuth(cfg)...)
	errs = append(errs, validateSession(cfg)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}

	if s.FrontendURL == "" {
		errs = append(errs, errors.New("server.frontend_url must not be empty"))
	}

	return errs
}

func validateOAuth(cfg *Config) []error {
	var errs []error

	if cfg.OAuth.ClientID == "" {
		errs = append(errs, fmt.Errorf("oauth.client_id is required (or set %s)", EnvOAuthClientID))
	}

	if cfg.OAuth.RedirectURL == "" {
		errs = append(errs, fmt.Errorf("oauth.redirect_url is required (or set %s)", EnvOAuthRedirectURL))
	}

	return errs
}

func validateSession(cfg *Config) []error {
	var errs []error

	if cfg.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name must not be empty"))
	}

	errs = append(errs, validateDuration("session.ttl", cfg.Session.TTL)...)

	return errs
}

func validateSecrets(s *Secrets) []error {
	var errs []error

	if s.OAuthClientSecret == "" {
		errs = append(errs, fmt.Errorf("%s environment variable is required", EnvOAuthClientSecret))
	}

	if s.SessionSecret == "" {
		errs = append(errs, fmt.Errorf("%s environment variable is required", EnvSessionSecret))
	}

	if s.VaultKey == "" {
		errs = append(errs, fmt.Errorf("%s environment variable is required", EnvVaultKey))
	}

	return errs
}

func validateLimits(l *Limits) []error {
	var errs []error

	checks := []struct {
		name  string
		value int64
	}{
		{"limits.max_file_size_bytes", l.MaxFileSizeBytes},
		{"limits.max_scan_folders", int64(l.MaxScanFolders)},
		{"limits.max_scan_files", int64(l.MaxScanFiles)},
		{"limits.max_download_files", int64(l.MaxDownloadFiles)},
	}

	for _, c := range checks {
		if c.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", c.name, c.value))
		}
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("network.connect_timeout", n.ConnectTimeout)...)
	errs = append(errs, validateDuration("network.request_timeout", n.RequestTimeout)...)
	errs = append(errs, validateDuration("network.download_timeout", n.DownloadTimeout)...)

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", l.Level))
	}

	switch l.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be one of auto/text/json, got %q", l.Format))
	}

	return errs
}

func validateDuration(name, raw string) []error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q", name, raw)}
	}

	if d <= 0 {
		return []error{fmt.Errorf("%s must be positive, got %s", name, raw)}
	}

	return nil
}
