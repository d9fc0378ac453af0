package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StorageConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Settings is the YAML file layout. Every value can be overridden by the
// environment variable named next to its getter.
type Settings struct {
	App      AppSettings      `yaml:"app"`
	Token    TokenSettings    `yaml:"token"`
	Security SecuritySettings `yaml:"security"`
	Storage  StorageSettings  `yaml:"storage"`
	Cors     CorsSettings     `yaml:"cors"`
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
	Storage
}

// New returns the defaults overlaid with environment variables.
func New() Config {
	return newMainConfig(defaultSettings())
}

// Load reads a YAML file on top of the defaults. Environment variables still win.
func Load(path string) (Config, error) {
	settings := defaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	c := newMainConfig(settings)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return c, nil
}

// FromEnvironment loads CONFIG_FILE when set, otherwise the defaults.
func FromEnvironment() (Config, error) {
	if path := os.Getenv(configFileEnvVar); path != "" {
		return Load(path)
	}
	c := New()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return c, nil
}

func newMainConfig(s *Settings) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{app: s.App},
		Cors:     Cors{settings: s.Cors},
		Tokens:   Tokens{settings: s.Token},
		Security: Security{settings: s.Security},
		Storage:  Storage{settings: s.Storage},
	}
}

func defaultSettings() *Settings {
	return &Settings{
		App: AppSettings{
			Name:     "Care Auth Server",
			Env:      "DEV",
			Port:     "8080",
			BaseURL:  "http://localhost:8080",
			LogLevel: "info",
		},
		Token:    defaultTokenSettings(),
		Security: defaultSecuritySettings(),
		Storage:  defaultStorageSettings(),
		Cors: CorsSettings{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Validate checks the configuration for errors and unsafe production settings.
func (c mainConfig) Validate() error {
	var errs []string

	if c.GetSigningKeyFile() == "" {
		switch {
		case len(c.GetSigningSecret()) < 32:
			errs = append(errs, "token.signing_secret must be at least 32 characters")
		case c.GetEnv() != "DEV" && c.GetSigningSecret() == devSigningSecret:
			errs = append(errs, "token.signing_secret must be replaced outside DEV")
		}
	}
	if c.GetAccessTokenExpiry() <= 0 {
		errs = append(errs, "token.access_ttl must be positive")
	}
	if c.GetRefreshTokenExpiry() <= c.GetAccessTokenExpiry() {
		errs = append(errs, "token.refresh_ttl must be longer than token.access_ttl")
	}
	if c.GetRefreshTokenLength() < 16 {
		errs = append(errs, "token.refresh_length must be at least 16 bytes")
	}
	if c.GetMaxSessionAge() <= 0 {
		errs = append(errs, "security.session_max_age must be positive")
	}
	if c.GetStoreTimeout() <= 0 {
		errs = append(errs, "security.store_timeout must be positive")
	}
	if c.GetEnableRateLimiting() && (c.GetRateLimitPerSecond() <= 0 || c.GetRateLimitBurst() <= 0) {
		errs = append(errs, "security.rate_limit_per_second and security.rate_limit_burst must be positive when rate limiting is enabled")
	}
	if bad := c.invalidTrustedProxies(); len(bad) > 0 {
		errs = append(errs, fmt.Sprintf("security.trusted_proxies has invalid entries: %s", strings.Join(bad, ", ")))
	}

	switch c.GetStorageDriver() {
	case DriverMemory:
	case DriverSQLite:
		if c.GetSQLitePath() == "" {
			errs = append(errs, "storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.GetPostgresDSN() == "" {
			errs = append(errs, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported", c.GetStorageDriver()))
	}

	switch c.GetSessionStore() {
	case SessionStoreDefault:
	case SessionStoreRedis:
		if c.GetRedisAddr() == "" {
			errs = append(errs, "storage.redis_addr is required for the redis session store")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.session_store %q is not supported", c.GetSessionStore()))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
