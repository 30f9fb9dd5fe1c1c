package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/go-playground/assert/v2"

	"recipe-api/auth"
	"recipe-api/config"
	testHelper "recipe-api/internal/test"
)

func TestScopes(t *testing.T) {
	assert.Equal(t, []string{"openid", "email", "profile"}, scopes(nil))
	assert.Equal(t, []string{"openid", "email", "profile", "groups"}, scopes([]string{"email", "groups", "openid"}))
}

func TestBuildUnknownProvider(t *testing.T) {
	factory := NewClientFactory(map[string]config.OIDCProvider{})
	_, err := factory.Build(context.Background(), "unknown")
	assert.Equal(t, true, errors.Is(err, auth.ErrProviderNotFound))
	assert.Equal(t, 404, auth.HTTPStatus(err))
}

func TestBuildInvalidRedirectUrl(t *testing.T) {
	for _, redirect := range []string{"", "/auth/oidc_login_cb/x", "ftp://localhost/cb", "http://"} {
		factory := NewClientFactory(map[string]config.OIDCProvider{
			"x": {ProviderName: "x", ClientID: "c", IssuerUrl: "http://127.0.0.1:1", RedirectUrl: redirect},
		})
		_, err := factory.Build(context.Background(), "x")
		if !errors.Is(err, auth.ErrRedirectURIInvalid) {
			t.Errorf("redirect %q: expected invalid redirect error, got %v", redirect, err)
		}
	}
}

func TestBuildDiscoveryFailed(t *testing.T) {
	port, err := testHelper.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}
	issuer := fmt.Sprintf("http://127.0.0.1:%d", port)
	factory := NewClientFactory(map[string]config.OIDCProvider{
		"down": {
			ProviderName: "down",
			ClientID:     "c",
			IssuerUrl:    issuer,
			RedirectUrl:  "http://localhost:8080/auth/oidc_login_cb/down",
		},
	})
	_, err = factory.Build(context.Background(), "down")
	assert.Equal(t, true, errors.Is(err, auth.ErrDiscoveryFailed))
	assert.Equal(t, 500, auth.HTTPStatus(err))
}

func TestBuildCancelledContext(t *testing.T) {
	idp := testHelper.NewIDP(t)
	factory := NewClientFactory(map[string]config.OIDCProvider{
		"shop-stage": idpProvider(idp, "shop-stage", "http://localhost:8080"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := factory.Build(ctx, "shop-stage")
	assert.Equal(t, true, errors.Is(err, auth.ErrDiscoveryFailed))
}

func TestAuthCodeURL(t *testing.T) {
	idp := testHelper.NewIDP(t)
	provider := idpProvider(idp, "shop-stage", "http://localhost:8080")
	provider.ClientScopes = []string{"groups"}
	factory := NewClientFactory(map[string]config.OIDCProvider{"shop-stage": provider})

	client, err := factory.Build(context.Background(), "shop-stage")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "shop-stage", client.Name)

	authURL, err := url.Parse(client.AuthCodeURL("the-state", "the-nonce"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, idp.Issuer()+"/authorize", authURL.Scheme+"://"+authURL.Host+authURL.Path)
	q := authURL.Query()
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "the-nonce", q.Get("nonce"))
	assert.Equal(t, idp.ClientID, q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile groups", q.Get("scope"))
	assert.Equal(t, provider.RedirectUrl, q.Get("redirect_uri"))
}

func idpProvider(idp *testHelper.IDP, name, baseUrl string) config.OIDCProvider {
	return config.OIDCProvider{
		ProviderName: name,
		ClientID:     idp.ClientID,
		ClientSecret: idp.ClientSecret,
		ClientRole:   "member",
		IssuerUrl:    idp.Issuer(),
		RedirectUrl:  baseUrl + "/auth/oidc_login_cb/" + name,
	}
}
