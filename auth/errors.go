package auth

import (
	"errors"
	"net/http"
)

// Errors of the active login flow. They are surfaced to the client as HTTP errors.
var (
	ErrProviderNotFound    = errors.New("oidc provider not found")
	ErrDiscoveryFailed     = errors.New("oidc provider discovery failed")
	ErrRedirectURIInvalid  = errors.New("oidc redirect url is invalid")
	ErrMissingAuthCode     = errors.New("missing 'code' query parameter")
	ErrStateMismatch       = errors.New("invalid or missing 'state' query parameter")
	ErrTokenExchangeFailed = errors.New("authorization code exchange failed")
	ErrMissingIDToken      = errors.New("no id_token in token response")
	ErrIDTokenInvalid      = errors.New("id token verification failed")
	ErrNonceMismatch       = errors.New("id token nonce does not match")
	ErrClaimsMappingFailed = errors.New("id token claims can not be mapped")
	ErrAccessDenied        = errors.New("access denied by provider access rule")
	ErrLoginCallbackFailed = errors.New("login callback failed")
)

// Errors of the passive authentication. They never fail a request, they only
// prevent an identity from being attached.
var (
	ErrTokenExpired      = errors.New("token is expired")
	ErrTokenMalformed    = errors.New("token is malformed")
	ErrSignatureInvalid  = errors.New("token signature is invalid")
	ErrAlgorithmMismatch = errors.New("token algorithm does not match the configured algorithm")
	ErrHeaderMissing     = errors.New("authentication header is missing")
	ErrHeaderMalformed   = errors.New("authentication header is malformed")
	ErrCookieMissing     = errors.New("authentication cookie is missing")
)

// HTTPStatus maps an error of the login flow to the status code returned to the client.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingAuthCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrIDTokenInvalid),
		errors.Is(err, ErrNonceMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
