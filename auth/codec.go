package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidClaims = errors.New("claims must expire after they were issued")

// Codec mints and verifies the session tokens of this service.
// It holds only read-only key material and is safe for concurrent use.
type Codec struct {
	alg        SigningAlgorithm
	issuer     string
	expiration time.Duration
}

// NewCodec creates a codec signing with alg. The issuer and expiration are used
// for claims created by NewSessionClaims.
func NewCodec(alg SigningAlgorithm, issuer string, expiration time.Duration) *Codec {
	return &Codec{
		alg:        alg,
		issuer:     issuer,
		expiration: expiration,
	}
}

// Algorithm returns the name of the configured signing algorithm.
func (c *Codec) Algorithm() string {
	return c.alg.Name()
}

// NewSessionClaims creates claims issued by this service with the configured expiration offset.
func (c *Codec) NewSessionClaims(subject, email, givenName, familyName string, picture *string) *Claims {
	return NewClaims(subject, c.issuer, email, givenName, familyName, picture, c.expiration)
}

// Mint signs the claims with the configured algorithm.
func (c *Codec) Mint(claims *Claims) (string, error) {
	if claims.ExpiresAt == nil {
		return "", ErrInvalidClaims
	}
	if claims.IssuedAt != nil && !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", ErrInvalidClaims
	}
	key, err := c.alg.signKey()
	if err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(c.alg.method(), claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns its claims. The header algorithm must
// equal the configured one, the signature must be valid and the token must not
// be expired. Each failure is reported as its own error kind.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			// alg header names a method unknown to the jwt library
			return nil, fmt.Errorf("%w: %v", ErrAlgorithmMismatch, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if alg := unverified.Method.Alg(); alg != c.alg.Name() {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAlgorithmMismatch, alg, c.alg.Name())
	}

	claims := new(Claims)
	_, err = jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return c.alg.verifyKey(), nil },
		jwt.WithValidMethods([]string{c.alg.Name()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
