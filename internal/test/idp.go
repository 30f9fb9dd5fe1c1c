package test

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const idpKeyID = "test-key"

// IDP is a minimal OpenID Connect provider for tests. It serves discovery,
// authorization, token and JWKS endpoints and issues RS256 signed ID tokens
// with the configured user claims.
type IDP struct {
	Server       *httptest.Server
	ClientID     string
	ClientSecret string

	key      *rsa.PrivateKey
	requests atomic.Int64

	mu            sync.Mutex
	user          map[string]any
	omitIDToken   bool
	nonceOverride *string
	codes         map[string]string
}

// NewIDP starts the provider. It is closed with the test.
func NewIDP(t *testing.T) *IDP {
	t.Helper()
	idp := &IDP{
		ClientID:     "client-" + RandHex(8),
		ClientSecret: RandHex(32),
		key:          RSAKey(t),
		user: map[string]any{
			"sub":         "upstream-" + RandHex(8),
			"email":       "toni.tester@example.com",
			"given_name":  "Toni",
			"family_name": "Tester",
		},
		codes: make(map[string]string),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idp.requests.Add(1)
			return next(c)
		}
	})
	e.GET("/.well-known/openid-configuration", idp.discovery)
	e.GET("/authorize", idp.authorize)
	e.POST("/token", idp.token)
	e.GET("/jwks", idp.jwks)

	idp.Server = httptest.NewServer(e)
	t.Cleanup(idp.Server.Close)
	return idp
}

func (i *IDP) Issuer() string {
	return i.Server.URL
}

// Requests returns the number of requests the provider received so far.
func (i *IDP) Requests() int64 {
	return i.requests.Load()
}

// SetUser replaces the claims of the next ID tokens.
func (i *IDP) SetUser(claims map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.user = claims
}

// User returns a copy of the current user claims.
func (i *IDP) User() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	u := make(map[string]any, len(i.user))
	for k, v := range i.user {
		u[k] = v
	}
	return u
}

// OmitIDToken makes the token endpoint answer without an id_token.
func (i *IDP) OmitIDToken(omit bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.omitIDToken = omit
}

// OverrideNonce makes the provider put nonce into the ID token instead of the requested one.
func (i *IDP) OverrideNonce(nonce string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nonceOverride = &nonce
}

// IssueCode registers an authorization code for the given nonce, as the
// authorization endpoint would.
func (i *IDP) IssueCode(nonce string) string {
	code := RandHex(24)
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[code] = nonce
	return code
}

func (i *IDP) discovery(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"issuer":                                i.Issuer(),
		"authorization_endpoint":                i.Issuer() + "/authorize",
		"token_endpoint":                        i.Issuer() + "/token",
		"jwks_uri":                              i.Issuer() + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      []string{"openid", "email", "profile"},
	})
}

// authorize logs the user in immediately and redirects back with a code.
func (i *IDP) authorize(c echo.Context) error {
	if c.QueryParam("client_id") != i.ClientID {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown client")
	}
	redirect, err := url.Parse(c.QueryParam("redirect_uri"))
	if err != nil || redirect.Host == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid redirect_uri")
	}
	code := i.IssueCode(c.QueryParam("nonce"))

	q := redirect.Query()
	q.Set("code", code)
	q.Set("state", c.QueryParam("state"))
	redirect.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, redirect.String())
}

func (i *IDP) token(c echo.Context) error {
	if c.FormValue("grant_type") != "authorization_code" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}

	i.mu.Lock()
	nonce, ok := i.codes[c.FormValue("code")]
	delete(i.codes, c.FormValue("code"))
	omit := i.omitIDToken
	if i.nonceOverride != nil {
		nonce = *i.nonceOverride
	}
	i.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	}

	res := map[string]any{
		"access_token": RandHex(32),
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !omit {
		idToken, err := i.signIDToken(nonce)
		if err != nil {
			return err
		}
		res["id_token"] = idToken
	}
	return c.JSON(http.StatusOK, res)
}

func (i *IDP) signIDToken(nonce string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": i.Issuer(),
		"aud": i.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range i.User() {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = idpKeyID
	return token.SignedString(i.key)
}

func (i *IDP) jwks(c echo.Context) error {
	pub := i.key.PublicKey
	return c.JSON(http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": idpKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}
