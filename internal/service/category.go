package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskhub-dev/taskhub/internal/cache"
	"github.com/taskhub-dev/taskhub/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const categoryResource = "categories"

// DefaultCacheTTL bounds how long a cached category page may be stale.
const DefaultCacheTTL = 15 * time.Minute

// CategoryFilter selects a page of categories.
type CategoryFilter struct {
	Name string `form:"name"`
	Page int    `form:"page"`
}

// CategoryInput holds writable category fields. Name is nil when omitted.
type CategoryInput struct {
	Name *string `json:"name"`
}

// CategoryService manages categories and their cached list pages.
type CategoryService struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCategoryService creates a CategoryService.
func NewCategoryService(db *gorm.DB, c cache.Cache, ttl time.Duration) *CategoryService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CategoryService{db: db, cache: c, ttl: ttl}
}

// CacheKey returns the cache key for filter.
func (f CategoryFilter) CacheKey() string {
	return cache.Key(categoryResource, map[string]string{"name": f.Name}, f.Page)
}

// List returns the JSON-encoded page for filter. Cached pages are returned
// byte for byte; misses are computed once per key and stored.
func (s *CategoryService) List(ctx context.Context, filter CategoryFilter) (json.RawMessage, error) {
	key := filter.CacheKey()

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Category cache read failed, treating as miss", "key", key, "error", err)
	} else if ok {
		return data, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		page, err := s.listPage(ctx, filter)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(page)
		if err != nil {
			return nil, fmt.Errorf("failed to encode categories: %w", err)
		}
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("Category cache write failed", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *CategoryService) listPage(ctx context.Context, filter CategoryFilter) (*Page[models.Category], error) {
	query := s.db.WithContext(ctx).Model(&models.Category{}).Order("id ASC")
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where(likeClause("name"), likePattern(name))
	}
	page, err := paginate[models.Category](query, filter.Page)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return page, nil
}

// Get returns a category by ID.
func (s *CategoryService) Get(ctx context.Context, id uint) (*models.Category, error) {
	var cat models.Category
	if err := s.db.WithContext(ctx).First(&cat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &cat, nil
}

// Create stores a new category.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name, err := s.validateName(ctx, in.Name, 0, true)
	if err != nil {
		return nil, err
	}

	cat := &models.Category{Name: name}
	if err := s.db.WithContext(ctx).Create(cat).Error; err != nil {
		return nil, s.writeError(err)
	}

	s.invalidate(ctx)
	return cat, nil
}

// Update replaces every writable field (PUT).
func (s *CategoryService) Update(ctx context.Context, id uint, in CategoryInput) (*models.Category, error) {
	return s.save(ctx, id, in, true)
}

// Patch changes only the provided fields (PATCH).
func (s *CategoryService) Patch(ctx context.Context, id uint, in CategoryInput) (*models.Category, error) {
	return s.save(ctx, id, in, false)
}

func (s *CategoryService) save(ctx context.Context, id uint, in CategoryInput, full bool) (*models.Category, error) {
	cat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil || full {
		name, err := s.validateName(ctx, in.Name, cat.ID, full)
		if err != nil {
			return nil, err
		}
		cat.Name = name
	}

	if err := s.db.WithContext(ctx).Save(cat).Error; err != nil {
		return nil, s.writeError(err)
	}

	s.invalidate(ctx)
	return cat, nil
}

// Delete removes a category unless tasks still reference it.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	cat, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var refs int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("category_id = ?", cat.ID).Count(&refs).Error; err != nil {
		return fmt.Errorf("failed to check category references: %w", err)
	}
	if refs > 0 {
		return &ConflictError{Message: fmt.Sprintf("Cannot delete category %q because %d task(s) reference it.", cat.Name, refs)}
	}

	if err := s.db.WithContext(ctx).Delete(cat).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return &ConflictError{Message: fmt.Sprintf("Cannot delete category %q because tasks reference it.", cat.Name)}
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}

	s.invalidate(ctx)
	return nil
}

// validateName checks name for presence and uniqueness among other categories.
func (s *CategoryService) validateName(ctx context.Context, name *string, selfID uint, required bool) (string, error) {
	if name == nil {
		if required {
			return "", fieldError("name", "This field is required.")
		}
		return "", nil
	}

	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return "", fieldError("name", "Category name cannot be empty.")
	}
	if len([]rune(trimmed)) > 100 {
		return "", fieldError("name", "Ensure this field has no more than 100 characters.")
	}

	var count int64
	query := s.db.WithContext(ctx).Model(&models.Category{}).Where("name = ?", trimmed)
	if selfID != 0 {
		query = query.Where("id <> ?", selfID)
	}
	if err := query.Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to check category name: %w", err)
	}
	if count > 0 {
		return "", fieldError("name", "Category with this name already exists.")
	}
	return trimmed, nil
}

func (s *CategoryService) writeError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fieldError("name", "Category with this name already exists.")
	}
	return fmt.Errorf("failed to save category: %w", err)
}

// invalidate drops every cached category page.
func (s *CategoryService) invalidate(ctx context.Context) {
	if err := cache.Invalidate(ctx, s.cache, categoryResource); err != nil {
		slog.Warn("Category cache invalidation failed", "error", err)
	}
}
