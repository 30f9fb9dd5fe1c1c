package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipe-api/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository is a PostgreSQL implementation of store.Repository
type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool and checks the connection.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// NewRepository constructs a Repository on an open pool. The pool is closed with the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) ListTags(ctx context.Context) ([]store.Tag, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM tag ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, scanTag)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (r *Repository) GetTag(ctx context.Context, id uuid.UUID) (*store.Tag, error) {
	var t store.Tag
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM tag WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, notFound(err, "tag", id)
	}
	return &t, nil
}

func (r *Repository) CreateTag(ctx context.Context, tag *store.Tag) error {
	tag.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `INSERT INTO tag (id, name) VALUES ($1, $2)`, tag.ID, tag.Name)
	if err != nil {
		return translate(fmt.Errorf("create tag %q: %w", tag.Name, err))
	}
	return nil
}

func (r *Repository) ListIngredients(ctx context.Context) ([]store.Ingredient, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM ingredient ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	ingredients, err := pgx.CollectRows(rows, scanIngredient)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}

	tags, err := r.loadIngredientTags(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range ingredients {
		ingredients[i].Tags = nonNil(tags[ingredients[i].ID])
	}
	return ingredients, nil
}

func (r *Repository) GetIngredient(ctx context.Context, id uuid.UUID) (*store.Ingredient, error) {
	i := store.Ingredient{}
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM ingredient WHERE id = $1`, id).Scan(&i.ID, &i.Name)
	if err != nil {
		return nil, notFound(err, "ingredient", id)
	}
	tags, err := r.loadIngredientTags(ctx, &id)
	if err != nil {
		return nil, err
	}
	i.Tags = nonNil(tags[id])
	return &i, nil
}

// loadIngredientTags returns the tags per ingredient, of all ingredients when id is nil
func (r *Repository) loadIngredientTags(ctx context.Context, id *uuid.UUID) (map[uuid.UUID][]store.Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT it.ingredient_id, t.id, t.name
		FROM ingredient_tag it
		JOIN tag t ON t.id = it.tag_id
		WHERE $1::uuid IS NULL OR it.ingredient_id = $1
		ORDER BY t.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load ingredient tags: %w", err)
	}
	defer rows.Close()

	result := map[uuid.UUID][]store.Tag{}
	for rows.Next() {
		var ingredientID uuid.UUID
		var t store.Tag
		if err := rows.Scan(&ingredientID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("load ingredient tags: %w", err)
		}
		result[ingredientID] = append(result[ingredientID], t)
	}
	return result, rows.Err()
}

func (r *Repository) CreateIngredient(ctx context.Context, ingredient *store.Ingredient) error {
	ingredient.ID = uuid.New()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ingredient (id, name) VALUES ($1, $2)`, ingredient.ID, ingredient.Name); err != nil {
			return fmt.Errorf("create ingredient %q: %w", ingredient.Name, err)
		}
		for idx, t := range ingredient.Tags {
			var name string
			err := tx.QueryRow(ctx, `SELECT name FROM tag WHERE id = $1`, t.ID).Scan(&name)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("tag %s: %w", t.ID, store.ErrInvalidReference)
			} else if err != nil {
				return fmt.Errorf("resolve tag %s: %w", t.ID, err)
			}
			ingredient.Tags[idx].Name = name
			if _, err := tx.Exec(ctx, `INSERT INTO ingredient_tag (ingredient_id, tag_id) VALUES ($1, $2)`, ingredient.ID, t.ID); err != nil {
				return fmt.Errorf("tag ingredient %q: %w", ingredient.Name, err)
			}
		}
		return nil
	})
	if ingredient.Tags == nil {
		ingredient.Tags = []store.Tag{}
	}
	return translate(err)
}

const recipeColumns = `id, name, description, link, user_id, created_at`

func (r *Repository) ListRecipes(ctx context.Context) ([]store.Recipe, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recipeColumns+` FROM recipe ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	recipes, err := pgx.CollectRows(rows, scanRecipe)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	ingredients, err := r.loadRecipeIngredients(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range recipes {
		recipes[i].Ingredients = nonNil(ingredients[recipes[i].ID])
	}
	return recipes, nil
}

func (r *Repository) GetRecipe(ctx context.Context, id uuid.UUID) (*store.Recipe, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recipeColumns+` FROM recipe WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}
	recipe, err := pgx.CollectOneRow(rows, scanRecipe)
	if err != nil {
		return nil, notFound(err, "recipe", id)
	}
	ingredients, err := r.loadRecipeIngredients(ctx, &id)
	if err != nil {
		return nil, err
	}
	recipe.Ingredients = nonNil(ingredients[id])
	return &recipe, nil
}

// loadRecipeIngredients returns the ingredients per recipe, of all recipes when id is nil
func (r *Repository) loadRecipeIngredients(ctx context.Context, id *uuid.UUID) (map[uuid.UUID][]store.RecipeIngredient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ri.recipe_id, ri.ingredient_id, i.name, ri.quantity, ri.unit
		FROM recipe_ingredient ri
		JOIN ingredient i ON i.id = ri.ingredient_id
		WHERE $1::uuid IS NULL OR ri.recipe_id = $1
		ORDER BY i.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load recipe ingredients: %w", err)
	}
	defer rows.Close()

	result := map[uuid.UUID][]store.RecipeIngredient{}
	for rows.Next() {
		var recipeID uuid.UUID
		var ri store.RecipeIngredient
		if err := rows.Scan(&recipeID, &ri.IngredientID, &ri.Name, &ri.Quantity, &ri.Unit); err != nil {
			return nil, fmt.Errorf("load recipe ingredients: %w", err)
		}
		result[recipeID] = append(result[recipeID], ri)
	}
	return result, rows.Err()
}

func (r *Repository) CreateRecipe(ctx context.Context, recipe *store.Recipe) error {
	recipe.ID = uuid.New()
	recipe.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO recipe (`+recipeColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			recipe.ID, recipe.Name, recipe.Description, recipe.Link, recipe.UserID, recipe.CreatedAt)
		if err != nil {
			return fmt.Errorf("create recipe %q: %w", recipe.Name, err)
		}
		for idx, ri := range recipe.Ingredients {
			var name string
			err := tx.QueryRow(ctx, `
				INSERT INTO recipe_ingredient (recipe_id, ingredient_id, quantity, unit)
				VALUES ($1, $2, $3, $4)
				RETURNING (SELECT name FROM ingredient WHERE id = $2)
			`, recipe.ID, ri.IngredientID, ri.Quantity, ri.Unit).Scan(&name)
			if err != nil {
				return fmt.Errorf("add ingredient %s: %w", ri.IngredientID, err)
			}
			recipe.Ingredients[idx].Name = name
		}
		return nil
	})
	if recipe.Ingredients == nil {
		recipe.Ingredients = []store.RecipeIngredient{}
	}
	return translate(err)
}

const userColumns = `id, provider, external_subject, email, given_name, family_name, picture, role, created_at, updated_at, last_login_at`

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (r *Repository) UpsertUser(ctx context.Context, user *store.User) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10)
		ON CONFLICT (provider, external_subject) DO UPDATE SET
			email = EXCLUDED.email,
			given_name = EXCLUDED.given_name,
			family_name = EXCLUDED.family_name,
			picture = EXCLUDED.picture,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at,
			last_login_at = EXCLUDED.last_login_at
		RETURNING id, created_at, updated_at
	`, uuid.New(), user.Provider, user.ExternalSubject, user.Email, user.GivenName, user.FamilyName,
		user.Picture, user.Role, now, nullTime(user.LastLoginAt),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func scanTag(row pgx.CollectableRow) (store.Tag, error) {
	var t store.Tag
	err := row.Scan(&t.ID, &t.Name)
	return t, err
}

func scanIngredient(row pgx.CollectableRow) (store.Ingredient, error) {
	var i store.Ingredient
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

func scanRecipe(row pgx.CollectableRow) (store.Recipe, error) {
	var rec store.Recipe
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Link, &rec.UserID, &rec.CreatedAt)
	return rec, err
}

func scanUser(row pgx.CollectableRow) (store.User, error) {
	var u store.User
	var lastLogin *time.Time
	err := row.Scan(&u.ID, &u.Provider, &u.ExternalSubject, &u.Email, &u.GivenName, &u.FamilyName,
		&u.Picture, &u.Role, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if lastLogin != nil {
		u.LastLoginAt = *lastLogin
	}
	return u, err
}

// notFound maps a missing row to store.ErrNotFound
func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", entity, id, err)
}

// translate maps constraint violations to the store errors
func translate(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %v", store.ErrInvalidReference, err)
	}
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
