package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair is an asymmetric signing key. Algorithm is one of RS256/384/512 or
// ES256/384/512.
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

// JWK is the public half of a KeyPair (RFC 7517). N and E are set for RSA
// keys, Crv X and Y for EC keys.
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

// GenerateRSAKeyPair creates a fresh RSA key of at least 2048 bits.
func GenerateRSAKeyPair(keyID, algorithm string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair] rsa.GenerateKey")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  algorithm,
	}, nil
}

var ecdsaCurves = map[string]elliptic.Curve{
	"ES256": elliptic.P256(),
	"ES384": elliptic.P384(),
	"ES512": elliptic.P521(),
}

// GenerateECDSAKeyPair creates a fresh key on the curve algorithm implies.
func GenerateECDSAKeyPair(keyID, algorithm string) (*KeyPair, error) {
	curve, ok := ecdsaCurves[algorithm]
	if !ok {
		return nil, errors.Errorf("[GenerateECDSAKeyPair] unsupported algorithm %q", algorithm)
	}
	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateECDSAKeyPair] ecdsa.GenerateKey")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  algorithm,
	}, nil
}

// SigningMethod maps Algorithm onto its jwt method, falling back to RS256.
func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	if m := jwt.GetSigningMethod(kp.Algorithm); m != nil && kp.Algorithm != "none" {
		return m
	}
	return jwt.SigningMethodRS256
}

// ToJWK publishes the public key for signature verification.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{
		Kid: kp.KeyID,
		Use: "sig",
		Alg: kp.Algorithm,
	}

	switch pubKey := kp.PublicKey.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes())

	case *ecdsa.PublicKey:
		size := (pubKey.Curve.Params().BitSize + 7) / 8
		jwk.Kty = "EC"
		jwk.Crv = pubKey.Curve.Params().Name
		jwk.X = base64.RawURLEncoding.EncodeToString(pubKey.X.FillBytes(make([]byte, size)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(pubKey.Y.FillBytes(make([]byte, size)))

	default:
		return nil, errors.Errorf("[KeyPair.ToJWK] unsupported public key type %T", kp.PublicKey)
	}

	return jwk, nil
}
