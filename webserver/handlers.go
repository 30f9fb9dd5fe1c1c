package webserver

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	authMiddleware "recipe-api/middleware"
	"recipe-api/store"

	log "github.com/sirupsen/logrus"
)

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func greet(c echo.Context) error {
	return c.String(http.StatusOK, "Hello, World!")
}

// self returns the claims of the caller, null when not authenticated
func self(c echo.Context) error {
	claims, _ := authMiddleware.ClaimsFrom(c)
	return c.JSON(http.StatusOK, claims)
}

type handler struct {
	repo store.Repository
}

type createTagRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type createIngredientRequest struct {
	Name   string      `json:"name" validate:"required,max=255"`
	TagIDs []uuid.UUID `json:"tag_ids" validate:"dive,required"`
}

type createRecipeRequest struct {
	Name        string                    `json:"name" validate:"required,max=255"`
	Description *string                   `json:"description" validate:"omitempty,max=4096"`
	Link        *string                   `json:"link" validate:"omitempty,url,max=4096"`
	Ingredients []recipeIngredientRequest `json:"ingredients" validate:"dive"`
}

type recipeIngredientRequest struct {
	IngredientID uuid.UUID `json:"ingredient_id" validate:"required"`
	Quantity     float64   `json:"quantity" validate:"gt=0"`
	Unit         string    `json:"unit" validate:"max=255"`
}

func (h *handler) listTags(c echo.Context) error {
	tags, err := h.repo.ListTags(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (h *handler) getTag(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	tag, err := h.repo.GetTag(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *handler) createTag(c echo.Context) error {
	var req createTagRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tag := &store.Tag{Name: req.Name}
	if err := h.repo.CreateTag(c.Request().Context(), tag); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, tag)
}

func (h *handler) listIngredients(c echo.Context) error {
	ingredients, err := h.repo.ListIngredients(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ingredients)
}

func (h *handler) getIngredient(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	ingredient, err := h.repo.GetIngredient(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ingredient)
}

func (h *handler) createIngredient(c echo.Context) error {
	var req createIngredientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ingredient := &store.Ingredient{Name: req.Name, Tags: make([]store.Tag, 0, len(req.TagIDs))}
	for _, id := range req.TagIDs {
		ingredient.Tags = append(ingredient.Tags, store.Tag{ID: id})
	}
	if err := h.repo.CreateIngredient(c.Request().Context(), ingredient); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, ingredient)
}

func (h *handler) listRecipes(c echo.Context) error {
	recipes, err := h.repo.ListRecipes(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, recipes)
}

func (h *handler) getRecipe(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	recipe, err := h.repo.GetRecipe(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, recipe)
}

// createRecipe stores a recipe owned by the caller. The token subject must be a user id.
func (h *handler) createRecipe(c echo.Context) error {
	claims, ok := authMiddleware.ClaimsFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "token subject is no user id")
	}

	var req createRecipeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	recipe := &store.Recipe{
		Name:        req.Name,
		Description: req.Description,
		Link:        req.Link,
		UserID:      userID,
		Ingredients: make([]store.RecipeIngredient, 0, len(req.Ingredients)),
	}
	for _, ri := range req.Ingredients {
		recipe.Ingredients = append(recipe.Ingredients, store.RecipeIngredient{
			IngredientID: ri.IngredientID,
			Quantity:     ri.Quantity,
			Unit:         ri.Unit,
		})
	}
	if err := h.repo.CreateRecipe(c.Request().Context(), recipe); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, recipe)
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// storeError maps repository errors to http errors
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidReference):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		log.WithError(err).Error("Repository failure")
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
}
