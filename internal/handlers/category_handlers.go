package handlers

import (
	"net/http"
	"strings"

	"storeadmin/internal/catalog"
	"storeadmin/internal/common"
	"storeadmin/internal/models"
	"storeadmin/internal/properties"

	"github.com/labstack/echo/v4"
)

// CategoryHandlers handles category-related HTTP requests
type CategoryHandlers struct {
	store *catalog.Store
}

// NewCategoryHandlers creates a new category handlers instance
func NewCategoryHandlers(store *catalog.Store) *CategoryHandlers {
	return &CategoryHandlers{store: store}
}

// CategoryListResponse carries the flat list and its tree view.
type CategoryListResponse struct {
	Categories []models.Category     `json:"categories"`
	Tree       []models.CategoryTree `json:"tree"`
}

// ListCategories returns the category snapshot with full paths for display
func (h *CategoryHandlers) ListCategories(c echo.Context) error {
	categories, err := h.store.Load(c.Request().Context())
	if err != nil {
		return sendCatalogError(c, "Failed to list categories", err)
	}
	return c.JSON(http.StatusOK, CategoryListResponse{
		Categories: categories,
		Tree:       properties.Paths(categories),
	})
}

// CreateCategory creates a category; "0" or empty parentCategory means no parent
func (h *CategoryHandlers) CreateCategory(c echo.Context) error {
	var req models.CategoryInput
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	req.ID = ""

	if err := h.store.Save(c.Request().Context(), req); err != nil {
		return sendCatalogError(c, "Failed to create category", err)
	}
	return c.JSON(http.StatusCreated, h.listResponse())
}

// UpdateCategory replaces name, parent and properties of the category in the path
func (h *CategoryHandlers) UpdateCategory(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return common.SendValidationError(c, "id", "is required")
	}

	var req models.CategoryInput
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	req.ID = id
	if req.ParentCategory == id {
		return common.SendValidationError(c, "parentCategory", "a category cannot be its own parent")
	}

	if err := h.store.Save(c.Request().Context(), req); err != nil {
		return sendCatalogError(c, "Failed to update category", err)
	}
	return c.JSON(http.StatusOK, h.listResponse())
}

func (h *CategoryHandlers) DeleteCategory(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return common.SendValidationError(c, "id", "is required")
	}

	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return sendCatalogError(c, "Failed to delete category", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CategoryHandlers) listResponse() CategoryListResponse {
	categories := h.store.Snapshot()
	return CategoryListResponse{Categories: categories, Tree: properties.Paths(categories)}
}
