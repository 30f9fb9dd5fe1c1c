package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"recipe-api/store"
)

// Repository is an in-memory implementation of store.Repository
type Repository struct {
	mu          sync.RWMutex
	tags        map[uuid.UUID]store.Tag
	ingredients map[uuid.UUID]store.Ingredient
	recipes     map[uuid.UUID]store.Recipe
	users       map[uuid.UUID]store.User
	// provider + "\x00" + subject -> user id
	usersByAccount map[string]uuid.UUID
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		tags:           make(map[uuid.UUID]store.Tag),
		ingredients:    make(map[uuid.UUID]store.Ingredient),
		recipes:        make(map[uuid.UUID]store.Recipe),
		users:          make(map[uuid.UUID]store.User),
		usersByAccount: make(map[string]uuid.UUID),
	}
}

func (r *Repository) Close() {}

func (r *Repository) ListTags(_ context.Context) ([]store.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]store.Tag, 0, len(r.tags))
	for _, t := range r.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (r *Repository) GetTag(_ context.Context, id uuid.UUID) (*store.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag, exists := r.tags[id]
	if !exists {
		return nil, fmt.Errorf("tag %s: %w", id, store.ErrNotFound)
	}
	return &tag, nil
}

func (r *Repository) CreateTag(_ context.Context, tag *store.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tags {
		if t.Name == tag.Name {
			return fmt.Errorf("tag %q: %w", tag.Name, store.ErrConflict)
		}
	}
	tag.ID = uuid.New()
	r.tags[tag.ID] = *tag
	return nil
}

func (r *Repository) ListIngredients(_ context.Context) ([]store.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ingredients := make([]store.Ingredient, 0, len(r.ingredients))
	for _, i := range r.ingredients {
		ingredients = append(ingredients, r.resolveIngredient(i))
	}
	sort.Slice(ingredients, func(i, j int) bool { return ingredients[i].Name < ingredients[j].Name })
	return ingredients, nil
}

func (r *Repository) GetIngredient(_ context.Context, id uuid.UUID) (*store.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ingredient, exists := r.ingredients[id]
	if !exists {
		return nil, fmt.Errorf("ingredient %s: %w", id, store.ErrNotFound)
	}
	resolved := r.resolveIngredient(ingredient)
	return &resolved, nil
}

func (r *Repository) CreateIngredient(_ context.Context, ingredient *store.Ingredient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := make([]store.Tag, 0, len(ingredient.Tags))
	for _, t := range ingredient.Tags {
		tag, exists := r.tags[t.ID]
		if !exists {
			return fmt.Errorf("tag %s: %w", t.ID, store.ErrInvalidReference)
		}
		tags = append(tags, tag)
	}
	ingredient.ID = uuid.New()
	ingredient.Tags = tags
	r.ingredients[ingredient.ID] = copyIngredient(*ingredient)
	return nil
}

// resolveIngredient returns a copy with the current tag names
func (r *Repository) resolveIngredient(i store.Ingredient) store.Ingredient {
	resolved := copyIngredient(i)
	for idx, t := range resolved.Tags {
		if tag, exists := r.tags[t.ID]; exists {
			resolved.Tags[idx] = tag
		}
	}
	return resolved
}

func (r *Repository) ListRecipes(_ context.Context) ([]store.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipes := make([]store.Recipe, 0, len(r.recipes))
	for _, rec := range r.recipes {
		recipes = append(recipes, r.resolveRecipe(rec))
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, nil
}

func (r *Repository) GetRecipe(_ context.Context, id uuid.UUID) (*store.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, exists := r.recipes[id]
	if !exists {
		return nil, fmt.Errorf("recipe %s: %w", id, store.ErrNotFound)
	}
	resolved := r.resolveRecipe(recipe)
	return &resolved, nil
}

func (r *Repository) CreateRecipe(_ context.Context, recipe *store.Recipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[recipe.UserID]; !exists {
		return fmt.Errorf("user %s: %w", recipe.UserID, store.ErrInvalidReference)
	}
	seen := make(map[uuid.UUID]bool, len(recipe.Ingredients))
	for _, ri := range recipe.Ingredients {
		if _, exists := r.ingredients[ri.IngredientID]; !exists {
			return fmt.Errorf("ingredient %s: %w", ri.IngredientID, store.ErrInvalidReference)
		}
		if seen[ri.IngredientID] {
			return fmt.Errorf("ingredient %s used twice: %w", ri.IngredientID, store.ErrConflict)
		}
		seen[ri.IngredientID] = true
	}
	recipe.ID = uuid.New()
	recipe.CreatedAt = time.Now().UTC()
	r.recipes[recipe.ID] = copyRecipe(*recipe)
	*recipe = r.resolveRecipe(*recipe)
	return nil
}

// resolveRecipe returns a copy with the current ingredient names
func (r *Repository) resolveRecipe(rec store.Recipe) store.Recipe {
	resolved := copyRecipe(rec)
	for idx, ri := range resolved.Ingredients {
		if ingredient, exists := r.ingredients[ri.IngredientID]; exists {
			resolved.Ingredients[idx].Name = ingredient.Name
		}
	}
	return resolved
}

func (r *Repository) GetUser(_ context.Context, id uuid.UUID) (*store.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &user, nil
}

func (r *Repository) UpsertUser(_ context.Context, user *store.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := user.Provider + "\x00" + user.ExternalSubject
	if id, exists := r.usersByAccount[key]; exists {
		existing := r.users[id]
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	} else {
		user.ID = uuid.New()
		user.CreatedAt = now
		r.usersByAccount[key] = user.ID
	}
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func copyIngredient(i store.Ingredient) store.Ingredient {
	i.Tags = append([]store.Tag{}, i.Tags...)
	return i
}

func copyRecipe(r store.Recipe) store.Recipe {
	r.Ingredients = append([]store.RecipeIngredient{}, r.Ingredients...)
	return r
}
