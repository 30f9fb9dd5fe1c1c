package postgres

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"

	"github.com/go-playground/assert/v2"
	"github.com/google/uuid"

	"recipe-api/store"
	testHelper "recipe-api/internal/test"
)

// tests against a database run only when a disposable database is provided
const testDatabaseEnv = "RECIPE_API_TEST_DATABASE_URL"

func TestListEmbeddedMigrations(t *testing.T) {
	migrations, err := listMigrations(mustSub(t))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 5, len(migrations))
	for i, m := range migrations {
		assert.Equal(t, i+1, m.version)
	}
	assert.Equal(t, "0001_create_tag.sql", migrations[0].name)
}

func TestListMigrationsOrder(t *testing.T) {
	migrations, err := listMigrations(fstest.MapFS{
		"10_ten.sql":    {Data: []byte("SELECT 10")},
		"2_two.sql":     {Data: []byte("SELECT 2")},
		"001_one.sql":   {Data: []byte("SELECT 1")},
		"readme.md":     {Data: []byte("ignored")},
		"draft_x.sql":   {Data: []byte("ignored")},
		"sub/3_sub.sql": {Data: []byte("ignored")},
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []migration{
		{version: 1, name: "001_one.sql"},
		{version: 2, name: "2_two.sql"},
		{version: 10, name: "10_ten.sql"},
	}, migrations)

	_, err = listMigrations(fstest.MapFS{
		"1_a.sql":  {Data: []byte("SELECT 1")},
		"01_b.sql": {Data: []byte("SELECT 1")},
	})
	assert.NotEqual(t, nil, err)
}

func TestRepository(t *testing.T) {
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url, 4)
	if err != nil {
		t.Fatal(err)
	}
	repo := NewRepository(pool)
	defer repo.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		t.Fatal(err)
	}
	// a second run applies nothing
	if err := RunMigrations(ctx, pool); err != nil {
		t.Fatal(err)
	}

	suffix := testHelper.RandHex(8)

	tag := &store.Tag{Name: "vegan-" + suffix}
	if err := repo.CreateTag(ctx, tag); err != nil {
		t.Fatal(err)
	}
	err = repo.CreateTag(ctx, &store.Tag{Name: tag.Name})
	assert.Equal(t, true, errors.Is(err, store.ErrConflict))
	gotTag, err := repo.GetTag(ctx, tag.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, tag.Name, gotTag.Name)

	ingredient := &store.Ingredient{Name: "Tomato " + suffix, Tags: []store.Tag{{ID: tag.ID}}}
	if err := repo.CreateIngredient(ctx, ingredient); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, tag.Name, ingredient.Tags[0].Name)
	err = repo.CreateIngredient(ctx, &store.Ingredient{Name: "x", Tags: []store.Tag{{ID: uuid.New()}}})
	assert.Equal(t, true, errors.Is(err, store.ErrInvalidReference))

	gotIngredient, err := repo.GetIngredient(ctx, ingredient.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, []store.Tag{*tag}, gotIngredient.Tags)

	user := &store.User{Provider: "shop-stage", ExternalSubject: suffix, Email: "toni@example.com", GivenName: "Toni", FamilyName: "Tester"}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	again := &store.User{Provider: "shop-stage", ExternalSubject: suffix, Email: "new@example.com", GivenName: "Toni", FamilyName: "Tester"}
	if err := repo.UpsertUser(ctx, again); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, user.ID, again.ID)
	gotUser, err := repo.GetUser(ctx, user.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, "new@example.com", gotUser.Email)

	recipe := &store.Recipe{
		Name:        "Salad " + suffix,
		UserID:      user.ID,
		Ingredients: []store.RecipeIngredient{{IngredientID: ingredient.ID, Quantity: 2.5, Unit: "kg"}},
	}
	if err := repo.CreateRecipe(ctx, recipe); err != nil {
		t.Fatal(err)
	}
	gotRecipe, err := repo.GetRecipe(ctx, recipe.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, recipe.Name, gotRecipe.Name)
	assert.Equal(t, recipe.Ingredients, gotRecipe.Ingredients)

	err = repo.CreateRecipe(ctx, &store.Recipe{Name: "ghost", UserID: uuid.New()})
	assert.Equal(t, true, errors.Is(err, store.ErrInvalidReference))

	_, err = repo.GetRecipe(ctx, uuid.New())
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))

	recipes, err := repo.ListRecipes(ctx)
	assert.Equal(t, nil, err)
	assert.NotEqual(t, 0, len(recipes))
}

func mustSub(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	return sub
}
