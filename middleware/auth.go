package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"recipe-api/auth"

	log "github.com/sirupsen/logrus"
)

const bearerPrefix = "Bearer "

// claimsKey is the echo context key of the authenticated claims.
const claimsKey = "auth_claims"

// Authenticate attaches the identity of the request, if any, to the request
// context and the echo context. The token is read from the header first
// (`<headerName>: Bearer <token>`) and from the cookie when the header yields
// no valid token. It never rejects a request; requests without a valid token
// continue unauthenticated.
func Authenticate(codec *auth.Codec, headerName, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := identify(c, codec, headerName, cookieName)
			if err != nil {
				log.WithError(err).
					WithField("path", c.Request().URL.Path).
					Debug("Request is not authenticated")
			}
			if claims != nil {
				req := c.Request()
				c.SetRequest(req.WithContext(auth.WithClaims(req.Context(), claims)))
				c.Set(claimsKey, claims)
			}
			return next(c)
		}
	}
}

// RequireAuth redirects requests without identity to loginPath.
// It must run after Authenticate.
func RequireAuth(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := ClaimsFrom(c); !ok {
				return c.Redirect(http.StatusFound, loginPath)
			}
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims attached by Authenticate.
func ClaimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	if !ok || claims == nil {
		return auth.FromContext(c.Request().Context())
	}
	return claims, true
}

func identify(c echo.Context, codec *auth.Codec, headerName, cookieName string) (*auth.Claims, error) {
	token, headerErr := tokenFromHeader(c.Request().Header.Get(headerName))
	if headerErr == nil {
		claims, err := codec.Verify(token)
		if err == nil {
			return claims, nil
		}
		headerErr = err
	}

	cookie, err := c.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		if !errors.Is(headerErr, auth.ErrHeaderMissing) {
			return nil, headerErr
		}
		return nil, auth.ErrCookieMissing
	}
	return codec.Verify(cookie.Value)
}

// tokenFromHeader extracts the token of a `Bearer <token>` header value.
// The scheme is case sensitive and separated by exactly one space.
func tokenFromHeader(value string) (string, error) {
	if value == "" {
		return "", auth.ErrHeaderMissing
	}
	token, ok := strings.CutPrefix(value, bearerPrefix)
	if !ok || token == "" || strings.ContainsAny(token, " \t") {
		return "", auth.ErrHeaderMalformed
	}
	return token, nil
}
