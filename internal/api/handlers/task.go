package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/audit"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

const taskNotFound = "Task not found."

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	db    *gorm.DB
	tasks *service.TaskService
}

func NewTaskHandler(db *gorm.DB, tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{db: db, tasks: tasks}
}

// ListTasks godoc
// @Summary List tasks
// @Description Returns one page of tasks ordered by due date.
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param title query string false "Title contains"
// @Param description query string false "Description contains"
// @Param due_date_gt query string false "Due after date (YYYY-MM-DD)"
// @Param due_date_lt query string false "Due before date (YYYY-MM-DD)"
// @Param is_completed query bool false "Completion status"
// @Param priority query string false "Priority" Enums(low, medium, high)
// @Param category query int false "Category ID"
// @Param page query int false "Page number"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /tasks/ [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var filter service.TaskFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		handleBindError(c, err, "Failed to retrieve tasks.")
		return
	}

	page, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, err, "Failed to retrieve tasks.", "Invalid page.")
		return
	}
	success(c, "Tasks retrieved successfully.", page)
}

// CreateTask godoc
// @Summary Create a task
// @Description Creates a task owned by the caller and publishes a task-created event.
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param task body service.TaskInput true "Task"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /tasks/ [post]
func (h *TaskHandler) CreateTask(c *gin.Context) {
	user, ok := getUser(c)
	if !ok {
		return
	}

	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handleBindError(c, err, "Failed to create task.")
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), in, user)
	if err != nil {
		handleServiceError(c, err, "Failed to create task.", taskNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionCreateTask, audit.Resource("task", task.ID), map[string]interface{}{
		"title": task.Title,
	})
	success(c, "Task created successfully.", task)
}

// GetTask godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /tasks/{id}/ [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := parseID(c, taskNotFound)
	if !ok {
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err, "Failed to retrieve task.", taskNotFound)
		return
	}
	success(c, "Task retrieved successfully.", task)
}

// UpdateTask godoc
// @Summary Replace a task
// @Description Omitted optional fields are reset to their defaults.
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Param task body service.TaskInput true "Task"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /tasks/{id}/ [put]
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	h.save(c, true)
}

// PatchTask godoc
// @Summary Partially update a task
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Param task body service.TaskInput true "Task fields"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /tasks/{id}/ [patch]
func (h *TaskHandler) PatchTask(c *gin.Context) {
	h.save(c, false)
}

func (h *TaskHandler) save(c *gin.Context, full bool) {
	user, ok := getUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, taskNotFound)
	if !ok {
		return
	}

	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handleBindError(c, err, "Failed to update task.")
		return
	}

	var (
		task *models.Task
		err  error
	)
	if full {
		task, err = h.tasks.Update(c.Request.Context(), id, in)
	} else {
		task, err = h.tasks.Patch(c.Request.Context(), id, in)
	}
	if err != nil {
		handleServiceError(c, err, "Failed to update task.", taskNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionUpdateTask, audit.Resource("task", id), map[string]interface{}{
		"full": full,
	})
	success(c, "Task updated successfully.", task)
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /tasks/{id}/ [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	user, ok := getUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, taskNotFound)
	if !ok {
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), id); err != nil {
		handleServiceError(c, err, "Failed to delete task.", taskNotFound)
		return
	}

	audit.Record(h.db, user.ID, audit.ActionDeleteTask, audit.Resource("task", id), nil)
	success(c, "Task deleted successfully.", nil)
}
