package token_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/care-auth-server/internal/config"
	"github.com/jrsteele09/care-auth-server/token"
	"github.com/stretchr/testify/require"
)

func writeKey(t *testing.T, kp *token.KeyPair) string {
	t.Helper()
	pemData, err := kp.EncodePrivateKeyPEM()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pemData, 0o600))
	return path
}

func TestNewSignerFromConfig(t *testing.T) {
	t.Run("hmac by default", func(t *testing.T) {
		signer, err := token.NewSignerFromConfig(config.New())
		require.NoError(t, err)
		require.Equal(t, "HS256", signer.GetSigningMethod().Alg())
	})

	t.Run("rsa key file", func(t *testing.T) {
		kp, err := token.GenerateKeyPair("RS256")
		require.NoError(t, err)
		t.Setenv("TOKEN_SIGNING_KEY_FILE", writeKey(t, kp))
		t.Setenv("TOKEN_SIGNING_ALGORITHM", "RS256")

		signer, err := token.NewSignerFromConfig(config.New())
		require.NoError(t, err)
		require.Equal(t, "RS256", signer.GetSigningMethod().Alg())

		signed, err := signer.Sign(jwt.RegisteredClaims{Subject: "user-1"})
		require.NoError(t, err)
		parsed, err := jwt.Parse(signed, signer.GetVerificationKey)
		require.NoError(t, err)
		require.True(t, parsed.Valid)
		require.NotEmpty(t, parsed.Header["kid"])

		kps, ok := signer.(*token.KeyPairSigner)
		require.True(t, ok)
		jwks, err := kps.GetJWKS()
		require.NoError(t, err)
		require.Len(t, jwks.Keys, 1)
		require.Equal(t, "RSA", jwks.Keys[0].Kty)
	})

	t.Run("ecdsa key infers algorithm", func(t *testing.T) {
		kp, err := token.GenerateKeyPair("ES256")
		require.NoError(t, err)
		t.Setenv("TOKEN_SIGNING_KEY_FILE", writeKey(t, kp))

		signer, err := token.NewSignerFromConfig(config.New())
		require.NoError(t, err)
		require.Equal(t, "ES256", signer.GetSigningMethod().Alg())

		jwk, err := kp.ToJWK()
		require.NoError(t, err)
		require.Equal(t, "P-256", jwk.Crv)
		require.Len(t, jwk.X, 43)

		loaded, err := token.LoadKeyPairFromPEM(mustPEM(t, kp), "")
		require.NoError(t, err)
		require.Equal(t, kp.KeyID, loaded.KeyID)
	})

	t.Run("curve must match algorithm", func(t *testing.T) {
		kp, err := token.GenerateKeyPair("ES384")
		require.NoError(t, err)
		t.Setenv("TOKEN_SIGNING_KEY_FILE", writeKey(t, kp))
		t.Setenv("TOKEN_SIGNING_ALGORITHM", "ES256")

		_, err = token.NewSignerFromConfig(config.New())
		require.Error(t, err)
	})

	t.Run("algorithm must match key type", func(t *testing.T) {
		kp, err := token.GenerateKeyPair("ES256")
		require.NoError(t, err)
		t.Setenv("TOKEN_SIGNING_KEY_FILE", writeKey(t, kp))
		t.Setenv("TOKEN_SIGNING_ALGORITHM", "RS256")

		_, err = token.NewSignerFromConfig(config.New())
		require.Error(t, err)
	})

	t.Run("missing key file", func(t *testing.T) {
		t.Setenv("TOKEN_SIGNING_KEY_FILE", filepath.Join(t.TempDir(), "missing.pem"))
		_, err := token.NewSignerFromConfig(config.New())
		require.Error(t, err)
	})
}

func mustPEM(t *testing.T, kp *token.KeyPair) string {
	t.Helper()
	pemData, err := kp.EncodePrivateKeyPEM()
	require.NoError(t, err)
	return string(pemData)
}

func TestGenerateKeyPair(t *testing.T) {
	_, err := token.GenerateKeyPair("HS256")
	require.Error(t, err)

	kp, err := token.GenerateKeyPair("es512")
	require.NoError(t, err)
	require.Equal(t, "ES512", kp.GetSigningMethod().Alg())
	require.Len(t, kp.KeyID, 16)
}

func TestHMACSigner(t *testing.T) {
	t.Run("short secrets are refused", func(t *testing.T) {
		_, err := token.NewHMACSigner("")
		require.Error(t, err)
		_, err = token.NewHMACSigner(strings.Repeat("k", token.MinHMACSecretLength-1))
		require.ErrorContains(t, err, "at least 32")

		signer, err := token.NewHMACSigner(strings.Repeat("k", token.MinHMACSecretLength))
		require.NoError(t, err)
		require.NotNil(t, signer)
	})

	t.Run("short secret in config fails signer construction", func(t *testing.T) {
		t.Setenv("TOKEN_SIGNING_SECRET", "short-secret")
		_, err := token.NewSignerFromConfig(config.New())
		require.Error(t, err)
	})

	t.Run("rejects asymmetric tokens", func(t *testing.T) {
		kp, err := token.GenerateKeyPair("RS256")
		require.NoError(t, err)
		signed, err := token.NewKeyPairSigner(kp).Sign(jwt.RegisteredClaims{Subject: "user-1"})
		require.NoError(t, err)

		signer, err := token.NewHMACSigner(testSecret)
		require.NoError(t, err)
		_, err = jwt.Parse(signed, signer.GetVerificationKey)
		require.Error(t, err)
	})

	t.Run("rejects other hmac strengths", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "user-1"}).
			SignedString([]byte(testSecret))
		require.NoError(t, err)

		signer, err := token.NewHMACSigner(testSecret)
		require.NoError(t, err)
		_, err = jwt.Parse(signed, signer.GetVerificationKey)
		require.Error(t, err)
	})
}

func TestKeyPairSignerVerificationKey(t *testing.T) {
	kp, err := token.GenerateKeyPair("RS256")
	require.NoError(t, err)
	signer := token.NewKeyPairSigner(kp)

	t.Run("own tokens verify", func(t *testing.T) {
		signed, err := signer.Sign(jwt.RegisteredClaims{Subject: "user-1"})
		require.NoError(t, err)
		parsed, err := jwt.Parse(signed, signer.GetVerificationKey)
		require.NoError(t, err)
		require.Equal(t, kp.KeyID, parsed.Header["kid"])
	})

	t.Run("token from another key id", func(t *testing.T) {
		rotated, err := token.GenerateKeyPair("RS256")
		require.NoError(t, err)
		require.NotEqual(t, kp.KeyID, rotated.KeyID)
		signed, err := token.NewKeyPairSigner(rotated).Sign(jwt.RegisteredClaims{Subject: "user-1"})
		require.NoError(t, err)

		_, err = jwt.Parse(signed, signer.GetVerificationKey)
		require.ErrorContains(t, err, rotated.KeyID)
	})

	t.Run("token without a key id", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{Subject: "user-1"}).
			SignedString(kp.PrivateKey)
		require.NoError(t, err)

		_, err = jwt.Parse(signed, signer.GetVerificationKey)
		require.ErrorContains(t, err, "no kid")
	})

	t.Run("algorithm other than the key's", func(t *testing.T) {
		t384 := jwt.NewWithClaims(jwt.SigningMethodRS384, jwt.RegisteredClaims{Subject: "user-1"})
		t384.Header["kid"] = kp.KeyID
		signed, err := t384.SignedString(kp.PrivateKey)
		require.NoError(t, err)

		_, err = jwt.Parse(signed, signer.GetVerificationKey)
		require.Error(t, err)
	})
}
