package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"recipe-api/auth"
)

type ContentConfig struct {
	// public base url of this service, used as token issuer
	BaseUrl string            `yaml:"base_url" validate:"required,url"`
	Auth    AuthConfig        `yaml:"auth" validate:"required"`
	OIDC    ContentConfigOIDC `yaml:"oidc"`
}

type AuthConfig struct {
	JWTSecret                  string `yaml:"jwt_secret" validate:"required_if=JWTAlgorithm HS256"`
	JWTAlgorithm               string `yaml:"jwt_algorithm" validate:"required,oneof=HS256 RS256"`
	JWTRSAPrivateKey           string `yaml:"jwt_rsa_private_key"`
	JWTRSAPublicKey            string `yaml:"jwt_rsa_public_key"`
	JWTHeaderName              string `yaml:"jwt_header_name" validate:"required"`
	JWTCookieName              string `yaml:"jwt_cookie_name" validate:"required"`
	JWTExpirationOffsetSeconds int    `yaml:"jwt_expiration_offset_seconds" validate:"gt=0"`
	LoginPath                  string `yaml:"login_path" validate:"required"`
	PathPrefix                 string `yaml:"path_prefix"`

	signing auth.SigningAlgorithm
}

type ContentConfigOIDC struct {
	Providers []OIDCProvider `yaml:"providers" validate:"unique=ProviderName,dive"`

	providers map[string]OIDCProvider
}

type OIDCProvider struct {
	ProviderName string   `yaml:"provider_name" validate:"required,excludesall=/?#"`
	ClientID     string   `yaml:"client_id" validate:"required"`
	ClientSecret string   `yaml:"client_secret"`
	ClientScopes []string `yaml:"client_scopes"`
	// role assigned to users registering through this provider
	ClientRole  string `yaml:"client_role"`
	IssuerUrl   string `yaml:"issuer_url" validate:"required,url"`
	RedirectUrl string `yaml:"redirect_url" validate:"required,url"`
	// optional tengo expression over the mapped claims, e.g. `text.has_suffix(user.email, "@example.com")`
	AccessRule string `yaml:"access_rule"`
}

func defaultContentConfig() ContentConfig {
	return ContentConfig{
		Auth: AuthConfig{
			JWTAlgorithm:               auth.AlgorithmHS256,
			JWTHeaderName:              "Authorization",
			JWTCookieName:              "jwt",
			JWTExpirationOffsetSeconds: 60 * 60 * 24,
			LoginPath:                  "/login",
		},
	}
}

func (c *ContentConfig) Validate(validate *validator.Validate) error {
	err := validateStruct(validate, c)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if c.Auth.JWTAlgorithm == auth.AlgorithmRS256 && c.Auth.JWTRSAPrivateKey == "" && c.Auth.JWTRSAPublicKey == "" {
		return fmt.Errorf("configuration validation failed: %s requires jwt_rsa_private_key or jwt_rsa_public_key", auth.AlgorithmRS256)
	}
	return nil
}

// Process normalizes urls and paths and builds the derived lookup structures.
// It must run once before the config is shared.
func (c *ContentConfig) Process() error {
	c.BaseUrl = strings.TrimRight(c.BaseUrl, "/")
	c.Auth.PathPrefix = normalizePrefix(c.Auth.PathPrefix)

	signing, err := auth.ParseSigningAlgorithm(
		c.Auth.JWTAlgorithm,
		c.Auth.JWTSecret,
		c.Auth.JWTRSAPrivateKey,
		c.Auth.JWTRSAPublicKey,
	)
	if err != nil {
		return fmt.Errorf("jwt signing configuration: %w", err)
	}
	c.Auth.signing = signing

	return c.OIDC.Process()
}

func (o *ContentConfigOIDC) Process() error {
	providers := make(map[string]OIDCProvider, len(o.Providers))
	for _, p := range o.Providers {
		if _, ok := providers[p.ProviderName]; ok {
			return fmt.Errorf("duplicate oidc provider %q", p.ProviderName)
		}
		providers[p.ProviderName] = p
	}
	o.providers = providers
	return nil
}

// ProviderMap returns the providers keyed by name. Configs built in code are
// processed on first use.
func (o *ContentConfigOIDC) ProviderMap() (map[string]OIDCProvider, error) {
	if o.providers == nil {
		if err := o.Process(); err != nil {
			return nil, err
		}
	}
	return o.providers, nil
}

// SecureCookies reports whether cookies must carry the Secure attribute,
// which is the case when the service is reached via https.
func (c *ContentConfig) SecureCookies() bool {
	u, err := url.Parse(c.BaseUrl)
	return err == nil && u.Scheme == "https"
}

// SigningAlgorithm returns the algorithm resolved by Process.
func (a *AuthConfig) SigningAlgorithm() auth.SigningAlgorithm {
	return a.signing
}

func (a *AuthConfig) ExpirationOffset() time.Duration {
	return time.Duration(a.JWTExpirationOffsetSeconds) * time.Second
}

// Path prepends the configured prefix to path.
func (a *AuthConfig) Path(path string) string {
	return a.PathPrefix + path
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func loadContentConfig(path string) (*ContentConfig, error) {
	contentCfg := defaultContentConfig()
	err := loadConfigFromFile(path, &contentCfg)
	if err != nil {
		return nil, err
	}
	return &contentCfg, nil
}

func loadConfigFromFile(path string, contentCfg *ContentConfig) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(file, contentCfg)
}
