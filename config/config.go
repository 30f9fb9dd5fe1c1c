package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"

	"recipe-api/auth"

	log "github.com/sirupsen/logrus"
)

// Config is the main configuration struct containing settings and content config
type Config struct {
	// contains the process settings read from the environment
	Settings Settings
	// contains the auth and provider configuration read from the config file
	Content ContentConfig
}

// loadConfig loads the configuration from environment variables and config file
func loadConfig() (*Config, error) {
	cfg := new(Config)
	// first load settings from env
	settings, err := loadSettingsFromEnv()
	if err != nil {
		help, errHelp := cleanenv.GetDescription(&cfg.Settings, nil)
		if errHelp != nil {
			log.WithError(err).WithError(errHelp).Error("can not get help text")
		} else {
			log.WithError(err).Error(help)
		}
		return nil, err
	}
	cfg.Settings = settings
	// then load content config from file
	contentCfg, err := loadContentConfig(settings.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config file %q: %w", settings.ConfigPath, err)
	}
	cfg.Content = *contentCfg
	return cfg, nil
}

// LoadAndProcessConfig loads, validates and resolves the configuration
func LoadAndProcessConfig() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Error("error loading config")
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = cfg.Validate(validate)
	if err != nil {
		log.WithError(err).Error("configuration is not valid")
		return nil, err
	}
	log.Info("Config read and validated successfully")

	err = cfg.Process()
	if err != nil {
		log.WithError(err).Error("Error resolving config")
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate(validate *validator.Validate) error {
	return c.Content.Validate(validate)
}

func (c *Config) Process() error {
	return c.Content.Process()
}

// NewCodec creates the token codec for the configured algorithm.
func (c *Config) NewCodec() *auth.Codec {
	return auth.NewCodec(
		c.Content.Auth.SigningAlgorithm(),
		c.Content.BaseUrl,
		c.Content.Auth.ExpirationOffset(),
	)
}

// NewCodecWithAlgorithm creates a codec for the given algorithm name instead of
// the configured one, using the key material of the auth config.
func (c *Config) NewCodecWithAlgorithm(name string) (*auth.Codec, error) {
	a := c.Content.Auth
	alg, err := auth.ParseSigningAlgorithm(name, a.JWTSecret, a.JWTRSAPrivateKey, a.JWTRSAPublicKey)
	if err != nil {
		return nil, err
	}
	return auth.NewCodec(alg, c.Content.BaseUrl, a.ExpirationOffset()), nil
}
