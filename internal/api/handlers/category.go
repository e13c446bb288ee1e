package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/audit"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

const categoryNotFound = "Category not found."

// CategoryHandler serves the category endpoints.
type CategoryHandler struct {
	db         *gorm.DB
	categories *service.CategoryService
}

func NewCategoryHandler(db *gorm.DB, categories *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{db: db, categories: categories}
}

// ListCategories godoc
// @Summary List categories
// @Description Returns one page of categories. Pages are served from the cache when present.
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param name query string false "Category name contains"
// @Param page query int false "Page number"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 403 {object} Response
// @Router /categories/ [get]
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	var filter service.CategoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		handleBindError(c, err, "Failed to retrieve categories.")
		return
	}

	data, err := h.categories.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "Failed to retrieve categories.", "Invalid page.")
		return
	}
	success(c, "Categories retrieved successfully.", data)
}

// CreateCategory godoc
// @Summary Create a category
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param category body service.CategoryInput true "Category"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /categories/ [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	user, ok := getUser(c)
	if !ok {
		return
	}

	var in service.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handleBindError(c, err, "Failed to create category.")
		return
	}

	category, err := h.categories.Create(c.Request.Context(), in)
	if err != nil {
		handleServiceError(c, err, "Failed to create category.", categoryNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionCreateCategory, audit.Resource("category", category.ID), map[string]interface{}{
		"name": category.Name,
	})
	success(c, "Category created successfully.", category)
}

// GetCategory godoc
// @Summary Get a category
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /categories/{id}/ [get]
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c, categoryNotFound)
	if !ok {
		return
	}

	category, err := h.categories.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err, "Failed to retrieve category.", categoryNotFound)
		return
	}
	success(c, "Category retrieved successfully.", category)
}

// UpdateCategory godoc
// @Summary Replace a category
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Param category body service.CategoryInput true "Category"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /categories/{id}/ [put]
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	h.save(c, true)
}

// PatchCategory godoc
// @Summary Partially update a category
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Param category body service.CategoryInput true "Category fields"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /categories/{id}/ [patch]
func (h *CategoryHandler) PatchCategory(c *gin.Context) {
	h.save(c, false)
}

func (h *CategoryHandler) save(c *gin.Context, full bool) {
	user, ok := getUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, categoryNotFound)
	if !ok {
		return
	}

	var in service.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handleBindError(c, err, "Failed to update category.")
		return
	}

	var (
		category *models.Category
		err      error
	)
	if full {
		category, err = h.categories.Update(c.Request.Context(), id, in)
	} else {
		category, err = h.categories.Patch(c.Request.Context(), id, in)
	}
	if err != nil {
		handleServiceError(c, err, "Failed to update category.", categoryNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionUpdateCategory, audit.Resource("category", id), map[string]interface{}{
		"name": category.Name,
	})
	success(c, "Category updated successfully.", category)
}

// DeleteCategory godoc
// @Summary Delete a category
// @Description Fails with 409 while tasks still reference the category.
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param id path int true "Category ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /categories/{id}/ [delete]
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	user, ok := getUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, categoryNotFound)
	if !ok {
		return
	}

	if err := h.categories.Delete(c.Request.Context(), id); err != nil {
		handleServiceError(c, err, "Failed to delete category.", categoryNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionDeleteCategory, audit.Resource("category", id), nil)
	success(c, "Category deleted successfully.", nil)
}
