package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// MinHMACSecretLength is the shortest shared secret accepted for HS256.
const MinHMACSecretLength = 32

// Signer issues access tokens and resolves the key that verifies them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc. It refuses tokens this signer
	// could not have produced.
	GetVerificationKey(token *jwt.Token) (any, error)

	GetSigningMethod() jwt.SigningMethod
}

// HMACsigner signs with a shared secret (HS256).
type HMACsigner struct {
	secret []byte
}

// NewHMACSigner rejects secrets shorter than MinHMACSecretLength bytes.
func NewHMACSigner(secret string) (*HMACsigner, error) {
	if len(secret) < MinHMACSecretLength {
		return nil, errors.Errorf("hmac signing secret is %d bytes, need at least %d", len(secret), MinHMACSecretLength)
	}
	return &HMACsigner{secret: []byte(secret)}, nil
}

func (h *HMACsigner) Sign(claims jwt.Claims) (string, error) {
	return signWith(jwt.SigningMethodHS256, h.secret, "", claims)
}

func (h *HMACsigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if err := expectMethod(token, jwt.SigningMethodHS256); err != nil {
		return nil, err
	}
	return h.secret, nil
}

func (h *HMACsigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA private key and stamps the key id
// into the token header so verifiers can pick the key from the JWKS.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	return signWith(a.keyPair.GetSigningMethod(), a.keyPair.PrivateKey, a.keyPair.KeyID, claims)
}

// GetVerificationKey only hands out the public key for tokens whose alg and
// kid both name this key pair.
func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if err := expectMethod(token, a.keyPair.GetSigningMethod()); err != nil {
		return nil, err
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token header has no kid")
	}
	if kid != a.keyPair.KeyID {
		return nil, errors.Errorf("token signed by unknown key %q", kid)
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

// GetJWKS publishes the public half of the signing key.
func (a *KeyPairSigner) GetJWKS() (*JWKS, error) {
	jwk, err := a.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "converting signing key to JWK")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

func signWith(method jwt.SigningMethod, key any, kid string, claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(method, claims)
	if kid != "" {
		t.Header["kid"] = kid
	}
	signed, err := t.SignedString(key)
	if err != nil {
		return "", errors.Wrapf(err, "signing %s token", method.Alg())
	}
	return signed, nil
}

func expectMethod(token *jwt.Token, want jwt.SigningMethod) error {
	if token.Method == nil || token.Method.Alg() != want.Alg() {
		return errors.Errorf("unexpected signing method %v, want %s", token.Header["alg"], want.Alg())
	}
	return nil
}
