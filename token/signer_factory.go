package token

import (
	"os"

	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/pkg/errors"
)

// NewSignerFromConfig returns a key pair signer when a PEM key file is
// configured and an HMAC signer over the shared secret otherwise.
func NewSignerFromConfig(cfg config.TokenConfig) (Signer, error) {
	keyFile := cfg.GetSigningKeyFile()
	if keyFile == "" {
		secret := cfg.GetSigningSecret()
		if secret == "" {
			return nil, errors.New("no token signing secret configured")
		}
		return NewHMACSigner(secret)
	}

	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read signing key %s", keyFile)
	}

	algorithm := cfg.GetSigningAlgorithm()
	if algorithm == "HS256" {
		algorithm = ""
	}
	keyPair, err := LoadKeyPairFromPEM(string(pemData), algorithm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load signing key")
	}
	return NewKeyPairSigner(keyPair), nil
}
