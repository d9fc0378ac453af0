package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"
)

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetSessionCookieName() string
	GetEnableRateLimiting() bool
	GetRateLimitPerSecond() float64
	GetRateLimitBurst() int
	GetStoreTimeout() time.Duration
	GetBootstrapAdminEmail() string
	GetTrustedProxies() []netip.Prefix
}

type SecuritySettings struct {
	SessionMaxAge       time.Duration `yaml:"session_max_age"`
	SessionCookieName   string        `yaml:"session_cookie_name"`
	RateLimiting        bool          `yaml:"rate_limiting"`
	RateLimitPerSecond  float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst      int           `yaml:"rate_limit_burst"`
	StoreTimeout        time.Duration `yaml:"store_timeout"`
	BootstrapAdminEmail string        `yaml:"bootstrap_admin_email"`
	TrustedProxies      []string      `yaml:"trusted_proxies"`
}

type Security struct {
	settings SecuritySettings
}

var _ SecurityConfig = Security{}

func defaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		SessionMaxAge:      12 * time.Hour,
		SessionCookieName:  "care_session",
		RateLimiting:       true,
		RateLimitPerSecond: 1,
		RateLimitBurst:     10,
		StoreTimeout:       3 * time.Second,
	}
}

func (s Security) GetMaxSessionAge() time.Duration {
	return GetEnvDuration("SESSION_MAX_AGE", s.settings.SessionMaxAge)
}

func (s Security) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", s.settings.SessionCookieName)
}

func (s Security) GetEnableRateLimiting() bool {
	return GetEnvBool("RATE_LIMITING", s.settings.RateLimiting)
}

// GetRateLimitPerSecond is the sustained rate per client IP on credential endpoints.
func (s Security) GetRateLimitPerSecond() float64 {
	return GetEnvFloat("RATE_LIMIT_PER_SECOND", s.settings.RateLimitPerSecond)
}

func (s Security) GetRateLimitBurst() int {
	return GetEnvInt("RATE_LIMIT_BURST", s.settings.RateLimitBurst)
}

// GetStoreTimeout bounds every persistence call.
func (s Security) GetStoreTimeout() time.Duration {
	return GetEnvDuration("STORE_TIMEOUT", s.settings.StoreTimeout)
}

// GetBootstrapAdminEmail enables creation of a first organization account on an empty store.
func (s Security) GetBootstrapAdminEmail() string {
	return GetEnv("BOOTSTRAP_ADMIN_EMAIL", s.settings.BootstrapAdminEmail)
}

// GetTrustedProxies lists the peers whose X-Forwarded-For header is believed.
// TRUSTED_PROXIES (comma separated addresses or CIDRs) replaces the file list.
// Unparseable entries are dropped here and reported by Validate.
func (s Security) GetTrustedProxies() []netip.Prefix {
	var prefixes []netip.Prefix
	for _, entry := range s.trustedProxyEntries() {
		if p, err := parseProxy(entry); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func (s Security) trustedProxyEntries() []string {
	entries := s.settings.TrustedProxies
	if env := os.Getenv("TRUSTED_PROXIES"); env != "" {
		entries = strings.Split(env, ",")
	}
	var out []string
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (s Security) invalidTrustedProxies() []string {
	var bad []string
	for _, entry := range s.trustedProxyEntries() {
		if _, err := parseProxy(entry); err != nil {
			bad = append(bad, entry)
		}
	}
	return bad
}

// parseProxy accepts a bare address (a single-host prefix) or a CIDR.
func parseProxy(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("trusted proxy %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
