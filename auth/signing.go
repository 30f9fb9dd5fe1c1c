package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported jwt algorithm")
	ErrSigningKeyMissing    = errors.New("no key for signing configured")
	ErrVerifyKeyMissing     = errors.New("no key for verification configured")
)

// SigningAlgorithm is the key material of the codec. It is either HMAC or RSA,
// no other implementations exist.
type SigningAlgorithm interface {
	// Name returns the JWT "alg" header value.
	Name() string
	method() jwt.SigningMethod
	signKey() (any, error)
	verifyKey() any
}

// HMAC signs and verifies with a shared secret (HS256).
type HMAC struct {
	Secret []byte
}

func NewHMAC(secret string) (HMAC, error) {
	if secret == "" {
		return HMAC{}, fmt.Errorf("%s: %w", AlgorithmHS256, ErrSigningKeyMissing)
	}
	return HMAC{Secret: []byte(secret)}, nil
}

func (h HMAC) Name() string              { return AlgorithmHS256 }
func (h HMAC) method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (h HMAC) signKey() (any, error)     { return h.Secret, nil }
func (h HMAC) verifyKey() any            { return h.Secret }

// RSA signs with a private key and verifies with the public key (RS256).
// The private key is optional for instances which only verify tokens.
type RSA struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// NewRSAFromPEM parses the PEM encoded key pair. When the public key is empty,
// it is derived from the private key.
func NewRSAFromPEM(privateKeyPEM, publicKeyPEM string) (RSA, error) {
	var r RSA
	if privateKeyPEM != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
		if err != nil {
			return RSA{}, fmt.Errorf("parse rsa private key: %w", err)
		}
		r.PrivateKey = key
		r.PublicKey = &key.PublicKey
	}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return RSA{}, fmt.Errorf("parse rsa public key: %w", err)
		}
		r.PublicKey = key
	}
	if r.PublicKey == nil {
		return RSA{}, fmt.Errorf("%s: %w", AlgorithmRS256, ErrVerifyKeyMissing)
	}
	return r, nil
}

func (r RSA) Name() string              { return AlgorithmRS256 }
func (r RSA) method() jwt.SigningMethod { return jwt.SigningMethodRS256 }

func (r RSA) signKey() (any, error) {
	if r.PrivateKey == nil {
		return nil, fmt.Errorf("%s: %w", AlgorithmRS256, ErrSigningKeyMissing)
	}
	return r.PrivateKey, nil
}

func (r RSA) verifyKey() any { return r.PublicKey }

// ParseSigningAlgorithm selects the variant for the configured algorithm name.
func ParseSigningAlgorithm(name, secret, privateKeyPEM, publicKeyPEM string) (SigningAlgorithm, error) {
	switch name {
	case AlgorithmHS256:
		return NewHMAC(secret)
	case AlgorithmRS256:
		return NewRSAFromPEM(privateKeyPEM, publicKeyPEM)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}
