package config

import "time"

type TokenConfig interface {
	GetIssuer() string
	GetAudience() string
	GetSigningSecret() string
	GetSigningKeyFile() string
	GetSigningAlgorithm() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
}

type TokenSettings struct {
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	SigningSecret    string        `yaml:"signing_secret"`
	SigningKeyFile   string        `yaml:"signing_key_file"`
	SigningAlgorithm string        `yaml:"signing_algorithm"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	RefreshLength    int           `yaml:"refresh_length"`
}

type Tokens struct {
	settings TokenSettings
}

var _ TokenConfig = Tokens{}

const devSigningSecret = "dev-only-signing-secret-change-me"

func defaultTokenSettings() TokenSettings {
	return TokenSettings{
		Issuer:           "care-auth-server",
		Audience:         "care-api",
		SigningSecret:    devSigningSecret,
		SigningAlgorithm: "HS256",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour, // 7 days
		RefreshLength:    32,                 // 32 bytes = 256 bits
	}
}

func (t Tokens) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", t.settings.Issuer)
}

func (t Tokens) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", t.settings.Audience)
}

func (t Tokens) GetSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", t.settings.SigningSecret)
}

// GetSigningKeyFile points at a PEM private key. When set it takes precedence
// over the shared secret.
func (t Tokens) GetSigningKeyFile() string {
	return GetEnv("TOKEN_SIGNING_KEY_FILE", t.settings.SigningKeyFile)
}

// GetSigningAlgorithm is one of HS256, RS256, RS384, RS512, ES256.
func (t Tokens) GetSigningAlgorithm() string {
	return GetEnv("TOKEN_SIGNING_ALGORITHM", t.settings.SigningAlgorithm)
}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("TOKEN_ACCESS_TTL", t.settings.AccessTTL)
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_TTL", t.settings.RefreshTTL)
}

func (t Tokens) GetRefreshTokenLength() int {
	return GetEnvInt("TOKEN_REFRESH_LENGTH", t.settings.RefreshLength)
}
