package store

import (
	"context"
	"fmt"
	"time"

	"recipe-api/auth"
	"recipe-api/config"

	log "github.com/sirupsen/logrus"
)

// UserRegistration registers every successful login as user. It replaces the
// upstream subject of the claims with the id of the local user, so tokens
// always carry local user ids.
type UserRegistration struct {
	repo Repository
}

func NewUserRegistration(repo Repository) *UserRegistration {
	return &UserRegistration{repo: repo}
}

func (u *UserRegistration) OnLoginCallback(ctx context.Context, claims *auth.Claims, provider config.OIDCProvider) error {
	user := &User{
		Provider:        provider.ProviderName,
		ExternalSubject: claims.Subject,
		Email:           claims.Email,
		GivenName:       claims.GivenName,
		FamilyName:      claims.FamilyName,
		Picture:         claims.Picture,
		Role:            provider.ClientRole,
		LastLoginAt:     time.Now(),
	}
	if err := u.repo.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	log.WithField("provider", provider.ProviderName).
		WithField("user", user.ID).
		Debug("User registered")

	claims.Subject = user.ID.String()
	return nil
}
