package oidc

import (
	"context"

	"recipe-api/auth"
	"recipe-api/config"

	log "github.com/sirupsen/logrus"
)

// LoginCallback is invoked after a successful provider login and before the
// session token is minted. It may modify the claims, e.g. to replace the
// provider subject with a local user id. An error aborts the login.
type LoginCallback interface {
	OnLoginCallback(ctx context.Context, claims *auth.Claims, provider config.OIDCProvider) error
}

// LoginCallbackFunc adapts a function to LoginCallback.
type LoginCallbackFunc func(ctx context.Context, claims *auth.Claims, provider config.OIDCProvider) error

func (f LoginCallbackFunc) OnLoginCallback(ctx context.Context, claims *auth.Claims, provider config.OIDCProvider) error {
	return f(ctx, claims, provider)
}

// LogLoginCallback only logs the login.
var LogLoginCallback = LoginCallbackFunc(func(_ context.Context, claims *auth.Claims, provider config.OIDCProvider) error {
	log.WithField("provider", provider.ProviderName).
		WithField("subject", claims.Subject).
		Info("User logged in")
	return nil
})
