package config

// Default values for configuration options. These are the "layer 0" of the
// override chain and work out of the box for local development.
const (
	defaultListenAddr       = "127.0.0.1:8080"
	defaultFrontendURL      = "http://localhost:3000"
	defaultCookieName       = "session"
	defaultSessionTTL       = "1h"
	defaultStorageRoot      = "storage"
	defaultDBPath           = "drivebooks.db"
	defaultMaxFileSizeBytes = 52428800 // 50 MiB
	defaultMaxScanFolders   = 1000
	defaultMaxScanFiles     = 5000
	defaultMaxDownloadFiles = 20
	defaultConnectTimeout   = "5s"
	defaultRequestTimeout   = "60s"
	defaultDownloadTimeout  = "120s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  defaultListenAddr,
			FrontendURL: defaultFrontendURL,
		},
		Session: SessionConfig{
			CookieName: defaultCookieName,
			TTL:        defaultSessionTTL,
		},
		Storage: StorageConfig{
			Root:   defaultStorageRoot,
			DBPath: defaultDBPath,
		},
		Limits: Limits{
			MaxFileSizeBytes: defaultMaxFileSizeBytes,
			MaxScanFolders:   defaultMaxScanFolders,
			MaxScanFiles:     defaultMaxScanFiles,
			MaxDownloadFiles: defaultMaxDownloadFiles,
		},
		Network: NetworkConfig{
			ConnectTimeout:  defaultConnectTimeout,
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
