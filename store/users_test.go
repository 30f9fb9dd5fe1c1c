package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/google/uuid"

	"recipe-api/auth"
	"recipe-api/config"
	"recipe-api/store"
	"recipe-api/store/memory"
)

type failingRepository struct {
	*memory.Repository
}

func (f failingRepository) UpsertUser(context.Context, *store.User) error {
	return errors.New("database down")
}

func TestUserRegistration(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	registration := store.NewUserRegistration(repo)
	codec := auth.NewCodec(auth.HMAC{Secret: []byte("secret")}, "http://recipes.test", time.Hour)
	provider := config.OIDCProvider{ProviderName: "shop-stage", ClientRole: "member"}

	picture := "https://example.com/toni.png"
	claims := codec.NewSessionClaims("upstream-1", "toni@example.com", "Toni", "Tester", &picture)
	if err := registration.OnLoginCallback(ctx, claims, provider); err != nil {
		t.Fatal(err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		t.Fatalf("subject is no user id: %v", err)
	}
	user, err := repo.GetUser(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "shop-stage", user.Provider)
	assert.Equal(t, "upstream-1", user.ExternalSubject)
	assert.Equal(t, "toni@example.com", user.Email)
	assert.Equal(t, "member", user.Role)
	assert.Equal(t, picture, *user.Picture)
	assert.Equal(t, false, user.LastLoginAt.IsZero())

	// the next login maps to the same user
	next := codec.NewSessionClaims("upstream-1", "toni@example.com", "Toni", "Tester", nil)
	if err := registration.OnLoginCallback(ctx, next, provider); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, claims.Subject, next.Subject)
}

func TestUserRegistrationError(t *testing.T) {
	registration := store.NewUserRegistration(failingRepository{memory.NewRepository()})
	claims := &auth.Claims{}
	claims.Subject = "upstream-1"

	err := registration.OnLoginCallback(context.Background(), claims, config.OIDCProvider{ProviderName: "shop-stage"})
	assert.NotEqual(t, nil, err)
	assert.Equal(t, "upstream-1", claims.Subject)
}
