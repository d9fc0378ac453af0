package config_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c := config.New()
	require.NoError(t, c.Validate())

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "care-auth-server", c.GetIssuer())
	require.Equal(t, "care-api", c.GetAudience())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenExpiry())
	require.Equal(t, 7*24*time.Hour, c.GetRefreshTokenExpiry())
	require.Equal(t, 32, c.GetRefreshTokenLength())
	require.Equal(t, 12*time.Hour, c.GetMaxSessionAge())
	require.Equal(t, "care_session", c.GetSessionCookieName())
	require.Equal(t, 3*time.Second, c.GetStoreTimeout())
	require.Equal(t, config.DriverSQLite, c.GetStorageDriver())
	require.Equal(t, config.SessionStoreDefault, c.GetSessionStore())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
	require.Empty(t, c.GetTrustedProxies(), "forwarded headers are ignored unless a proxy is configured")
}

func TestTrustedProxies(t *testing.T) {
	t.Run("file list accepts addresses and ranges", func(t *testing.T) {
		c, err := config.Load(writeConfig(t, "security:\n  trusted_proxies: [\"10.1.2.3\", \"172.16.0.0/12\"]\n"))
		require.NoError(t, err)

		proxies := c.GetTrustedProxies()
		require.Len(t, proxies, 2)
		require.True(t, proxies[0].Contains(netip.MustParseAddr("10.1.2.3")))
		require.False(t, proxies[0].Contains(netip.MustParseAddr("10.1.2.4")))
		require.True(t, proxies[1].Contains(netip.MustParseAddr("172.20.9.9")))
	})

	t.Run("environment replaces the file list", func(t *testing.T) {
		t.Setenv("TRUSTED_PROXIES", " 192.0.2.1 ,2001:db8::/32")
		c, err := config.Load(writeConfig(t, "security:\n  trusted_proxies: [\"10.1.2.3\"]\n"))
		require.NoError(t, err)

		proxies := c.GetTrustedProxies()
		require.Len(t, proxies, 2)
		require.True(t, proxies[0].Contains(netip.MustParseAddr("192.0.2.1")))
		require.True(t, proxies[1].Contains(netip.MustParseAddr("2001:db8::7")))
	})
}

func TestLoad(t *testing.T) {
	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeConfig(t, `
app:
  env: staging
token:
  signing_secret: "0123456789abcdef0123456789abcdef"
  access_ttl: 5m
security:
  rate_limiting: false
storage:
  driver: postgres
  postgres_dsn: postgres://care@localhost/care
cors:
  allowed_origins: ["https://care.example.com"]
`)
		c, err := config.Load(path)
		require.NoError(t, err)

		require.Equal(t, "STAGING", c.GetEnv())
		require.Equal(t, 5*time.Minute, c.GetAccessTokenExpiry())
		require.Equal(t, 7*24*time.Hour, c.GetRefreshTokenExpiry(), "unset keys keep their default")
		require.False(t, c.GetEnableRateLimiting())
		require.Equal(t, config.DriverPostgres, c.GetStorageDriver())
		require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://care.example.com"))
		require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
	})

	t.Run("environment wins over file", func(t *testing.T) {
		path := writeConfig(t, "token:\n  access_ttl: 5m\n")
		t.Setenv("TOKEN_ACCESS_TTL", "2m")
		t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, 2*time.Minute, c.GetAccessTokenExpiry())
		require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "token: [unterminated"))
		require.Error(t, err)
	})

	t.Run("from environment uses CONFIG_FILE", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeConfig(t, "app:\n  port: \"9090\"\n"))
		c, err := config.FromEnvironment()
		require.NoError(t, err)
		require.Equal(t, ":9090", c.GetPort())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "default secret outside dev",
			env:     map[string]string{"ENV": "prod"},
			wantErr: "signing_secret must be replaced",
		},
		{
			name:    "short secret in dev",
			env:     map[string]string{"TOKEN_SIGNING_SECRET": "too-short"},
			wantErr: "at least 32 characters",
		},
		{
			name: "key file replaces the secret check",
			env:  map[string]string{"ENV": "prod", "TOKEN_SIGNING_KEY_FILE": "/etc/care/signing.pem"},
		},
		{
			name:    "refresh shorter than access",
			env:     map[string]string{"TOKEN_REFRESH_TTL": "10m"},
			wantErr: "refresh_ttl",
		},
		{
			name:    "refresh length too small",
			env:     map[string]string{"TOKEN_REFRESH_LENGTH": "8"},
			wantErr: "refresh_length",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORAGE_DRIVER": "mongo"},
			wantErr: "not supported",
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"STORAGE_DRIVER": "postgres"},
			wantErr: "postgres_dsn",
		},
		{
			name:    "redis without address",
			env:     map[string]string{"SESSION_STORE": "redis"},
			wantErr: "redis_addr",
		},
		{
			name:    "zero rate with limiting on",
			env:     map[string]string{"RATE_LIMITING": "true", "RATE_LIMIT_PER_SECOND": "0"},
			wantErr: "rate_limit_per_second",
		},
		{
			name: "zero rate with limiting off",
			env:  map[string]string{"RATE_LIMITING": "false", "RATE_LIMIT_PER_SECOND": "0"},
		},
		{
			name: "memory driver",
			env:  map[string]string{"STORAGE_DRIVER": "memory"},
		},
		{
			name:    "malformed trusted proxy",
			env:     map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8, lb.internal"},
			wantErr: "lb.internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			err := config.New().Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
