package store

import (
	"time"

	"github.com/google/uuid"
)

type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Ingredient struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Tags []Tag     `json:"tags"`
}

// RecipeIngredient is an ingredient used by a recipe. The name is resolved on read.
type RecipeIngredient struct {
	IngredientID uuid.UUID `json:"ingredient_id"`
	Name         string    `json:"name"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
}

type Recipe struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description *string            `json:"description,omitempty"`
	Link        *string            `json:"link,omitempty"`
	UserID      uuid.UUID          `json:"user_id"`
	Ingredients []RecipeIngredient `json:"ingredients"`
	CreatedAt   time.Time          `json:"created_at"`
}

// User is a person that logged in through one of the oidc providers.
// Provider and ExternalSubject identify the upstream account.
type User struct {
	ID              uuid.UUID `json:"id"`
	Provider        string    `json:"provider"`
	ExternalSubject string    `json:"external_subject"`
	Email           string    `json:"email"`
	GivenName       string    `json:"given_name"`
	FamilyName      string    `json:"family_name"`
	Picture         *string   `json:"picture,omitempty"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastLoginAt     time.Time `json:"last_login_at"`
}
