package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"recipe-api/auth"

	log "github.com/sirupsen/logrus"
)

const loginSessionName = "oidc_login_session"

const (
	sessionKeyState    = "state"
	sessionKeyNonce    = "nonce"
	sessionKeyProvider = "provider"
)

// upstreamClaims are the ID token claims read from the provider.
// Names are pointers to tell a missing claim apart from an empty one.
type upstreamClaims struct {
	Subject    string  `json:"sub"`
	Email      string  `json:"email"`
	GivenName  *string `json:"given_name"`
	FamilyName *string `json:"family_name"`
	Picture    *string `json:"picture"`
}

// TokenCookie describes the cookie the minted session token is delivered in.
type TokenCookie struct {
	Name string
	// set when the service is reached via https
	Secure bool
}

// LoginFlow runs the authorization code flow against the configured providers
// and issues a local session token after a successful login.
type LoginFlow struct {
	factory *ClientFactory
	codec   *auth.Codec
	cookie  TokenCookie
	hook    LoginCallback
	rules   map[string]*AccessRule
}

// NewLoginFlow compiles the access rules of all providers. A nil hook is
// replaced by LogLoginCallback.
func NewLoginFlow(factory *ClientFactory, codec *auth.Codec, cookie TokenCookie, hook LoginCallback) (*LoginFlow, error) {
	if hook == nil {
		hook = LogLoginCallback
	}
	rules := make(map[string]*AccessRule)
	for name, p := range factory.providers {
		if p.AccessRule == "" {
			continue
		}
		rule, err := compileAccessRule(name, p.AccessRule)
		if err != nil {
			return nil, fmt.Errorf("access rule of provider %q: %w", name, err)
		}
		rules[name] = rule
	}
	return &LoginFlow{
		factory: factory,
		codec:   codec,
		cookie:  cookie,
		hook:    hook,
		rules:   rules,
	}, nil
}

// Initiate redirects the user agent to the authorization endpoint of the
// provider named by the :provider_name path param.
func (l *LoginFlow) Initiate(c echo.Context) error {
	providerName := c.Param("provider_name")
	logger := log.WithField("provider", providerName)

	client, err := l.factory.Build(c.Request().Context(), providerName)
	if err != nil {
		return httpError(logger, err)
	}

	state, err := randomToken()
	if err != nil {
		return httpError(logger, err)
	}
	nonce, err := randomToken()
	if err != nil {
		return httpError(logger, err)
	}

	sess, err := session.Get(loginSessionName, c)
	if sess == nil {
		return httpError(logger, fmt.Errorf("get login session: %w", err))
	}
	if err != nil {
		// an undecodable session is replaced by the new one
		logger.WithError(err).Debug("Discarding broken login session")
	}
	sess.Values[sessionKeyState] = state
	sess.Values[sessionKeyNonce] = nonce
	sess.Values[sessionKeyProvider] = providerName
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return httpError(logger, fmt.Errorf("save login session: %w", err))
	}

	logger.Debug("Redirecting to oidc provider")
	return c.Redirect(http.StatusFound, client.AuthCodeURL(state, nonce))
}

// Callback completes the login started by Initiate. On success the minted
// token is set as cookie and the claims are returned as JSON.
func (l *LoginFlow) Callback(c echo.Context) error {
	providerName := c.Param("provider_name")
	logger := log.WithField("provider", providerName)

	code := c.QueryParam("code")
	if code == "" {
		return httpError(logger, auth.ErrMissingAuthCode)
	}

	if _, err := l.factory.Provider(providerName); err != nil {
		return httpError(logger, err)
	}

	sess, _ := session.Get(loginSessionName, c)
	pending, err := takePendingLogin(sess, providerName, c.QueryParam("state"))
	if sess != nil {
		if errSave := sess.Save(c.Request(), c.Response()); errSave != nil {
			logger.WithError(errSave).Warn("Failed to clear login session")
		}
	}
	if err != nil {
		return httpError(logger, err)
	}

	claims, token, err := l.Complete(c.Request().Context(), providerName, code, pending.nonce)
	if err != nil {
		return httpError(logger, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     l.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   l.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	logger.WithField("subject", claims.Subject).Info("Login completed")
	return c.JSON(http.StatusOK, claims)
}

// Complete exchanges the authorization code, verifies the ID token against the
// expected nonce and mints the local session token.
func (l *LoginFlow) Complete(ctx context.Context, providerName, code, nonce string) (*auth.Claims, string, error) {
	client, err := l.factory.Build(ctx, providerName)
	if err != nil {
		return nil, "", err
	}

	oauth2Token, err := client.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrTokenExchangeFailed, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", auth.ErrMissingIDToken
	}

	idToken, err := client.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrIDTokenInvalid, err)
	}
	if idToken.Nonce != nonce {
		return nil, "", auth.ErrNonceMismatch
	}

	var upstream upstreamClaims
	if err := idToken.Claims(&upstream); err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrClaimsMappingFailed, err)
	}
	claims, err := l.mapClaims(upstream)
	if err != nil {
		return nil, "", err
	}

	if err := l.checkAccess(ctx, providerName, claims); err != nil {
		return nil, "", err
	}

	if err := l.hook.OnLoginCallback(ctx, claims, client.Config()); err != nil {
		return nil, "", fmt.Errorf("%w: %v", auth.ErrLoginCallbackFailed, err)
	}

	token, err := l.codec.Mint(claims)
	if err != nil {
		return nil, "", err
	}
	return claims, token, nil
}

func (l *LoginFlow) mapClaims(upstream upstreamClaims) (*auth.Claims, error) {
	if upstream.GivenName == nil {
		return nil, fmt.Errorf("%w: given_name missing", auth.ErrClaimsMappingFailed)
	}
	if upstream.FamilyName == nil {
		return nil, fmt.Errorf("%w: family_name missing", auth.ErrClaimsMappingFailed)
	}
	return l.codec.NewSessionClaims(
		upstream.Subject,
		upstream.Email,
		*upstream.GivenName,
		*upstream.FamilyName,
		upstream.Picture,
	), nil
}

func (l *LoginFlow) checkAccess(ctx context.Context, providerName string, claims *auth.Claims) error {
	rule, ok := l.rules[providerName]
	if !ok {
		return nil
	}
	return rule.Check(ctx, claims)
}

type pendingLogin struct {
	state string
	nonce string
}

// takePendingLogin checks the returned state against the session and removes
// the pending login from it, so a state can be used once only.
func takePendingLogin(sess *sessions.Session, providerName, state string) (pendingLogin, error) {
	if sess == nil {
		return pendingLogin{}, fmt.Errorf("%w: no login session", auth.ErrStateMismatch)
	}
	expectedState, _ := sess.Values[sessionKeyState].(string)
	nonce, _ := sess.Values[sessionKeyNonce].(string)
	expectedProvider, _ := sess.Values[sessionKeyProvider].(string)
	delete(sess.Values, sessionKeyState)
	delete(sess.Values, sessionKeyNonce)
	delete(sess.Values, sessionKeyProvider)

	if expectedState == "" || state != expectedState {
		return pendingLogin{}, auth.ErrStateMismatch
	}
	if expectedProvider != providerName {
		return pendingLogin{}, fmt.Errorf("%w: login was started for another provider", auth.ErrStateMismatch)
	}
	return pendingLogin{state: expectedState, nonce: nonce}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func httpError(logger *log.Entry, err error) error {
	status := auth.HTTPStatus(err)
	entry := logger.WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Login failed")
	} else {
		entry.Warn("Login rejected")
	}
	return echo.NewHTTPError(status, err.Error())
}
