package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair is an asymmetric signing key. KeyID is derived from the public key,
// so the same PEM file always publishes the same kid.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

// JWKS is the document served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

var signingMethods = map[string]jwt.SigningMethod{
	"RS256": jwt.SigningMethodRS256,
	"RS384": jwt.SigningMethodRS384,
	"RS512": jwt.SigningMethodRS512,
	"ES256": jwt.SigningMethodES256,
	"ES384": jwt.SigningMethodES384,
	"ES512": jwt.SigningMethodES512,
}

var rsaBits = map[string]int{"RS256": 2048, "RS384": 3072, "RS512": 4096}

var ecCurves = map[string]elliptic.Curve{
	"ES256": elliptic.P256(),
	"ES384": elliptic.P384(),
	"ES512": elliptic.P521(),
}

// GenerateKeyPair creates a fresh key for one of the RS* or ES* algorithms.
func GenerateKeyPair(algorithm string) (*KeyPair, error) {
	algorithm = strings.ToUpper(algorithm)

	if bits, ok := rsaBits[algorithm]; ok {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate RSA key")
		}
		return newKeyPair(key, algorithm)
	}
	if curve, ok := ecCurves[algorithm]; ok {
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate ECDSA key")
		}
		return newKeyPair(key, algorithm)
	}
	return nil, errors.Errorf("unsupported signing algorithm %q", algorithm)
}

// LoadKeyPairFromPEM parses a PKCS1, SEC1 or PKCS8 private key. An empty
// algorithm defaults to RS256 or ES256 by key type.
func LoadKeyPairFromPEM(privatePEM, algorithm string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	key, err := parsePrivateKey(block)
	if err != nil {
		return nil, err
	}
	return newKeyPair(key, strings.ToUpper(algorithm))
}

func newKeyPair(key crypto.PrivateKey, algorithm string) (*KeyPair, error) {
	kp := &KeyPair{PrivateKey: key, Algorithm: algorithm}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		if kp.Algorithm == "" {
			kp.Algorithm = "RS256"
		}
		if _, ok := rsaBits[kp.Algorithm]; !ok {
			return nil, errors.Errorf("RSA key cannot sign %s", kp.Algorithm)
		}
		kp.PublicKey = &k.PublicKey
	case *ecdsa.PrivateKey:
		if kp.Algorithm == "" {
			kp.Algorithm = "ES256"
		}
		curve, ok := ecCurves[kp.Algorithm]
		if !ok || curve != k.Curve {
			return nil, errors.Errorf("ECDSA %s key cannot sign %s", k.Curve.Params().Name, kp.Algorithm)
		}
		kp.PublicKey = &k.PublicKey
	default:
		return nil, errors.New("unsupported private key type")
	}

	der, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal public key")
	}
	sum := sha256.Sum256(der)
	kp.KeyID = hex.EncodeToString(sum[:8])
	return kp, nil
}

func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	if m, ok := signingMethods[kp.Algorithm]; ok {
		return m
	}
	return jwt.SigningMethodRS256
}

// EncodePrivateKeyPEM writes the key as PKCS8, the form LoadKeyPairFromPEM
// reads back for either key type.
func (kp *KeyPair) EncodePrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ToJWK publishes the public half. EC coordinates are padded to the curve size.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{Kid: kp.KeyID, Use: "sig", Alg: kp.Algorithm}

	switch pub := kp.PublicKey.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = b64(pub.N.Bytes())
		jwk.E = b64(big.NewInt(int64(pub.E)).Bytes())
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		jwk.Kty = "EC"
		jwk.Crv = pub.Curve.Params().Name
		jwk.X = b64(pub.X.FillBytes(make([]byte, size)))
		jwk.Y = b64(pub.Y.FillBytes(make([]byte, size)))
	default:
		return nil, errors.New("unsupported public key type")
	}
	return jwk, nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func parsePrivateKey(block *pem.Block) (crypto.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		return key, errors.Wrap(err, "failed to parse RSA private key")
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		return key, errors.Wrap(err, "failed to parse ECDSA private key")
	default:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		return key, errors.Wrap(err, "failed to parse PKCS8 private key")
	}
}
