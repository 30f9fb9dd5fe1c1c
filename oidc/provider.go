package oidc

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"recipe-api/auth"
	"recipe-api/config"

	log "github.com/sirupsen/logrus"
)

// scopes requested from every provider, configured client scopes are added
var defaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// ClientFactory builds OIDC clients for the configured providers.
// Discovery runs on every Build, clients are not cached between requests.
type ClientFactory struct {
	providers map[string]config.OIDCProvider
}

func NewClientFactory(providers map[string]config.OIDCProvider) *ClientFactory {
	p := make(map[string]config.OIDCProvider, len(providers))
	for name, provider := range providers {
		p[name] = provider
	}
	return &ClientFactory{providers: p}
}

// Provider returns the configuration of the named provider without any network access.
func (f *ClientFactory) Provider(name string) (config.OIDCProvider, error) {
	p, ok := f.providers[name]
	if !ok {
		return config.OIDCProvider{}, fmt.Errorf("%w: %q", auth.ErrProviderNotFound, name)
	}
	return p, nil
}

// Build looks up the provider, fetches its discovery document and returns a
// client bound to the configured client credentials and redirect url.
// Discovery failures are returned as is and not retried.
func (f *ClientFactory) Build(ctx context.Context, name string) (*Client, error) {
	cfg, err := f.Provider(name)
	if err != nil {
		return nil, err
	}
	if err := validateRedirectUrl(cfg.RedirectUrl); err != nil {
		return nil, err
	}

	p, err := oidc.NewProvider(ctx, cfg.IssuerUrl)
	if err != nil {
		log.WithField("provider", name).
			WithField("issuer", cfg.IssuerUrl).
			WithError(err).
			Warn("Failed to discover oidc provider.")
		return nil, fmt.Errorf("%w: %v", auth.ErrDiscoveryFailed, err)
	}

	return &Client{
		Name: name,
		cfg:  cfg,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectUrl,
			Endpoint:     p.Endpoint(),
			Scopes:       scopes(cfg.ClientScopes),
		},
		verifier: p.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Client is a provider bound to one login attempt.
type Client struct {
	Name         string
	cfg          config.OIDCProvider
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

func (c *Client) Config() config.OIDCProvider {
	return c.cfg
}

// AuthCodeURL returns the authorization endpoint url carrying state and nonce.
func (c *Client) AuthCodeURL(state, nonce string) string {
	return c.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce))
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.oauth2Config.Exchange(ctx, code)
}

// VerifyIDToken checks signature, issuer, audience and expiry of the raw ID token.
func (c *Client) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	return c.verifier.Verify(ctx, rawIDToken)
}

func validateRedirectUrl(redirectUrl string) error {
	u, err := url.Parse(redirectUrl)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrRedirectURIInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", auth.ErrRedirectURIInvalid, redirectUrl)
	}
	return nil
}

func scopes(configured []string) []string {
	result := append([]string{}, defaultScopes...)
	for _, s := range configured {
		if !slices.Contains(result, s) {
			result = append(result, s)
		}
	}
	return result
}
