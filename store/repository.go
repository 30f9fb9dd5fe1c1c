package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrInvalidReference = errors.New("referenced entity does not exist")
)

// Repository persists the recipe domain. Lists are ordered by name.
type Repository interface {
	ListTags(ctx context.Context) ([]Tag, error)
	GetTag(ctx context.Context, id uuid.UUID) (*Tag, error)
	// CreateTag assigns a new id. Tag names are unique.
	CreateTag(ctx context.Context, tag *Tag) error

	ListIngredients(ctx context.Context) ([]Ingredient, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (*Ingredient, error)
	// CreateIngredient assigns a new id and resolves the referenced tags by id.
	CreateIngredient(ctx context.Context, ingredient *Ingredient) error

	ListRecipes(ctx context.Context) ([]Recipe, error)
	GetRecipe(ctx context.Context, id uuid.UUID) (*Recipe, error)
	// CreateRecipe assigns a new id and resolves the referenced ingredients by id.
	CreateRecipe(ctx context.Context, recipe *Recipe) error

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// UpsertUser creates or updates the user identified by provider and
	// external subject and fills in the stored id and timestamps.
	UpsertUser(ctx context.Context, user *User) error

	Close()
}
