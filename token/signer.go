package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs tokens and supplies the key used to verify them
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	VerificationKey(token *jwt.Token) (any, error)
	Method() jwt.SigningMethod
	KeyID() string
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	keyID  string
	secret []byte
}

func NewHMACSigner(keyID, secret string) *HMACSigner {
	return &HMACSigner{
		keyID:  keyID,
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if h.keyID != "" {
		token.Header["kid"] = h.keyID
	}
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign] SignedString")
	}
	return signed, nil
}

func (h *HMACSigner) VerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) Method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (h *HMACSigner) KeyID() string             { return h.keyID }

// KeyPairSigner implements Signer using RSA or ECDSA
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.SigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signed, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign] SignedString")
	}
	return signed, nil
}

func (a *KeyPairSigner) VerificationKey(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		return a.keyPair.PublicKey, nil
	default:
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func (a *KeyPairSigner) Method() jwt.SigningMethod { return a.keyPair.SigningMethod() }
func (a *KeyPairSigner) KeyID() string             { return a.keyPair.KeyID }

// JWK returns the public half of the key pair
func (a *KeyPairSigner) JWK() (*JWK, error) {
	return a.keyPair.ToJWK()
}

// NewSigner builds a signer for algorithm. Asymmetric algorithms get a freshly
// generated key pair, HS256 uses secret.
func NewSigner(algorithm, keyID, secret string) (Signer, error) {
	switch algorithm {
	case "HS256":
		if secret == "" {
			return nil, errors.New("[NewSigner] HS256 requires a secret")
		}
		return NewHMACSigner(keyID, secret), nil
	case "RS256", "RS384", "RS512":
		bits := map[string]int{"RS256": 2048, "RS384": 3072, "RS512": 4096}[algorithm]
		kp, err := GenerateRSAKeyPair(keyID, algorithm, bits)
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner] GenerateRSAKeyPair")
		}
		return NewKeyPairSigner(kp), nil
	case "ES256", "ES384", "ES512":
		kp, err := GenerateECDSAKeyPair(keyID, algorithm)
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner] GenerateECDSAKeyPair")
		}
		return NewKeyPairSigner(kp), nil
	}
	return nil, errors.Errorf("[NewSigner] unsupported signing algorithm %q", algorithm)
}
