package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskhub-dev/taskhub/internal/models"
	"gorm.io/gorm"
)

const minTitleLength = 5

// TaskEvents is notified after a task is created. Implementations must not block.
type TaskEvents interface {
	TaskCreated(task *models.Task, owner *models.User)
}

// TaskInput holds writable task fields. Nil fields were omitted by the caller.
type TaskInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	DueDate     *time.Time       `json:"due_date"`
	IsCompleted *bool            `json:"is_completed"`
	Priority    *models.Priority `json:"priority"`
	Category    *uint            `json:"category"`
}

// TaskFilter selects a page of tasks. Date bounds compare against due_date.
type TaskFilter struct {
	Title       string           `form:"title"`
	Description string           `form:"description"`
	DueDateGt   *time.Time       `form:"due_date_gt" time_format:"2006-01-02"`
	DueDateLt   *time.Time       `form:"due_date_lt" time_format:"2006-01-02"`
	IsCompleted *bool            `form:"is_completed"`
	Priority    *models.Priority `form:"priority"`
	Category    *uint            `form:"category"`
	Page        int              `form:"page"`
}

// TaskService manages tasks.
type TaskService struct {
	db     *gorm.DB
	events TaskEvents
	now    func() time.Time
}

// NewTaskService creates a TaskService. events may be nil.
func NewTaskService(db *gorm.DB, events TaskEvents) *TaskService {
	return &TaskService{db: db, events: events, now: time.Now}
}

// Create validates and stores a task owned by owner, then emits a task-created event.
// Event delivery never affects the result.
func (s *TaskService) Create(ctx context.Context, in TaskInput, owner *models.User) (*models.Task, error) {
	task := &models.Task{Priority: models.PriorityMedium, UserID: owner.ID}
	if err := s.apply(ctx, task, in, true); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Omit("Category", "User").Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	created, err := s.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.TaskCreated(created, owner)
	}
	return created, nil
}

// List returns one page of tasks ordered by due date.
func (s *TaskService) List(ctx context.Context, filter TaskFilter) (*Page[models.Task], error) {
	query := s.db.WithContext(ctx).Model(&models.Task{}).Order("due_date ASC, id ASC")

	if title := strings.TrimSpace(filter.Title); title != "" {
		query = query.Where(likeClause("title"), likePattern(title))
	}
	if desc := strings.TrimSpace(filter.Description); desc != "" {
		query = query.Where(likeClause("description"), likePattern(desc))
	}
	if filter.DueDateGt != nil {
		query = query.Where("due_date > ?", startOfDay(*filter.DueDateGt))
	}
	if filter.DueDateLt != nil {
		query = query.Where("due_date < ?", startOfDay(*filter.DueDateLt))
	}
	if filter.IsCompleted != nil {
		query = query.Where("is_completed = ?", *filter.IsCompleted)
	}
	if filter.Priority != nil {
		if !filter.Priority.Valid() {
			return nil, fieldError("priority", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", *filter.Priority))
		}
		query = query.Where("priority = ?", *filter.Priority)
	}
	if filter.Category != nil {
		query = query.Where("category_id = ?", *filter.Category)
	}

	page, err := paginate[models.Task](query, filter.Page, "Category")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return page, nil
}

// Get returns a task by ID with its category.
func (s *TaskService) Get(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Preload("Category").First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Update writes a full task (PUT). Title and category are required; omitted
// optional fields keep their stored values.
func (s *TaskService) Update(ctx context.Context, id uint, in TaskInput) (*models.Task, error) {
	return s.save(ctx, id, in, true)
}

// Patch changes only the provided fields (PATCH).
func (s *TaskService) Patch(ctx context.Context, id uint, in TaskInput) (*models.Task, error) {
	return s.save(ctx, id, in, false)
}

func (s *TaskService) save(ctx context.Context, id uint, in TaskInput, full bool) (*models.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, task, in, full); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Omit("Category", "User").Save(task).Error; err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return s.Get(ctx, task.ID)
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Task{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// apply validates in and copies it onto task. required demands title and category.
func (s *TaskService) apply(ctx context.Context, task *models.Task, in TaskInput, required bool) error {
	verr := &ValidationError{Message: "Invalid input."}

	if in.Title != nil {
		title := *in.Title
		switch {
		case strings.TrimSpace(title) == "":
			verr.Add("title", "Title cannot be empty.")
		case len([]rune(strings.TrimSpace(title))) < minTitleLength:
			verr.Add("title", fmt.Sprintf("Title must be at least %d characters long.", minTitleLength))
		case len([]rune(title)) > 255:
			verr.Add("title", "Ensure this field has no more than 255 characters.")
		default:
			task.Title = title
		}
	} else if required {
		verr.Add("title", "This field is required.")
	}

	if in.Description != nil {
		task.Description = *in.Description
	}

	if in.DueDate != nil {
		due := in.DueDate.UTC()
		if due.Before(s.now().UTC()) {
			verr.Add("due_date", "Due date cannot be in the past.")
		} else {
			task.DueDate = &due
		}
	}

	if in.IsCompleted != nil {
		task.IsCompleted = *in.IsCompleted
	}

	if in.Priority != nil {
		if !in.Priority.Valid() {
			verr.Add("priority", "Priority must be 'low', 'medium', or 'high'.")
		} else {
			task.Priority = *in.Priority
		}
	}

	if in.Category != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", *in.Category).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check category: %w", err)
		}
		if count == 0 {
			verr.Add("category", "Category does not exist.")
		} else {
			task.CategoryID = *in.Category
		}
	} else if required {
		verr.Add("category", "This field is required.")
	}

	return verr.OrNil()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
