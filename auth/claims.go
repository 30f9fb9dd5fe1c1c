package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity carried inside a session token.
// Subject, Issuer, ExpiresAt and IssuedAt live in the embedded registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Email      string  `json:"email"`
	GivenName  string  `json:"given_name"`
	FamilyName string  `json:"family_name"`
	Picture    *string `json:"picture,omitempty"`
}

// NewClaims creates claims issued now and expiring after offset.
func NewClaims(subject, issuer, email, givenName, familyName string, picture *string, offset time.Duration) *Claims {
	// the token only carries seconds, so drop everything below
	now := time.Now().Truncate(time.Second)
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(offset)),
		},
		Email:      email,
		GivenName:  givenName,
		FamilyName: familyName,
		Picture:    picture,
	}
}

func (c *Claims) FullName() string {
	return fmt.Sprintf("%s %s", c.GivenName, c.FamilyName)
}

// Expiry returns the absolute expiry or the zero time, if the claims do not expire.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// AsMap returns the claims as plain map, as used by the access rule expressions.
func (c *Claims) AsMap() map[string]any {
	m := map[string]any{
		"sub":         c.Subject,
		"iss":         c.Issuer,
		"email":       c.Email,
		"given_name":  c.GivenName,
		"family_name": c.FamilyName,
		"picture":     "",
	}
	if c.Picture != nil {
		m["picture"] = *c.Picture
	}
	if c.ExpiresAt != nil {
		m["exp"] = c.ExpiresAt.Unix()
	}
	return m
}
