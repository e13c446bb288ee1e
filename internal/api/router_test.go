package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub-dev/taskhub/internal/api/middleware"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/cache"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/db"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/rbac"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

type recordingEvents struct {
	created []*models.Task
}

func (r *recordingEvents) TaskCreated(task *models.Task, _ *models.User) {
	r.created = append(r.created, task)
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	users  *service.UserService
	events *recordingEvents
}

func setupRouter(t *testing.T, limiter middleware.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "development"},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: time.Hour,
			Google:     config.GoogleConfig{SessionSecret: "session-secret"},
		},
	}

	database, err := db.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		t.Fatalf("init rbac: %v", err)
	}

	users := service.NewUserService(database, service.NewProvisioner(database, slog.Default()), "social")
	events := &recordingEvents{}
	router := NewRouter(cfg, Deps{
		DB:            database,
		Authenticator: auth.NewBasicAuthenticator(database, cfg.Auth),
		Users:         users,
		Categories:    service.NewCategoryService(database, cache.NewMemoryCache(), service.DefaultCacheTTL),
		Tasks:         service.NewTaskService(database, events),
		Limiter:       limiter,
	})
	return &testEnv{router: router, db: database, users: users, events: events}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login creates a user of role and returns a real access token for it.
func (e *testEnv) login(t *testing.T, role models.Role, email string) string {
	t.Helper()
	in := service.CreateUserInput{Email: email, Password: "s3cret-pass"}
	if _, err := e.users.CreateForRole(context.Background(), role, in); err != nil {
		t.Fatalf("create %s: %v", role, err)
	}

	w := e.do(t, http.MethodPost, "/api/v1/token/", "", map[string]string{"email": email, "password": "s3cret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, w.Code, w.Body.String())
	}
	var tokens auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		t.Fatalf("expected both tokens, got %+v", tokens)
	}
	return tokens.Access
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	return env
}

func (e *testEnv) category(t *testing.T, token, name string) uint {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/categories/", token, map[string]string{"name": name})
	if w.Code != http.StatusOK {
		t.Fatalf("create category: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cat models.Category
	if err := json.Unmarshal(decode(t, w).Data, &cat); err != nil {
		t.Fatalf("decode category: %v", err)
	}
	return cat.ID
}

func taskBody(title string, category uint) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "Quarterly numbers",
		"due_date":    time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"priority":    "high",
		"category":    category,
	}
}

func TestCreateTask_Employer(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployer, "boss@example.com")
	catID := env.category(t, token, "Work")

	w := env.do(t, http.MethodPost, "/api/v1/tasks/", token, taskBody("Write report", catID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if !resp.Success {
		t.Error("expected success")
	}
	var task struct {
		Title    string          `json:"title"`
		Priority string          `json:"priority"`
		Category models.Category `json:"category"`
	}
	if err := json.Unmarshal(resp.Data, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Title != "Write report" {
		t.Errorf("expected title %q, got %q", "Write report", task.Title)
	}
	if task.Category.Name != "Work" {
		t.Errorf("expected category Work, got %+v", task.Category)
	}
	if len(env.events.created) != 1 {
		t.Errorf("expected one task-created event, got %d", len(env.events.created))
	}
}

func TestCreateTask_EmployeeForbidden(t *testing.T) {
	env := setupRouter(t, nil)
	employer := env.login(t, models.RoleEmployer, "boss@example.com")
	employee := env.login(t, models.RoleEmployee, "worker@example.com")
	catID := env.category(t, employer, "Work")

	w := env.do(t, http.MethodPost, "/api/v1/tasks/", employee, taskBody("Write report", catID))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w).Success {
		t.Error("expected success=false")
	}

	// Employees may still read
	if w := env.do(t, http.MethodGet, "/api/v1/tasks/", employee, nil); w.Code != http.StatusOK {
		t.Errorf("list as employee: expected 200, got %d", w.Code)
	}
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/tasks/", "", taskBody("Write report", 1))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/tasks/", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}
}

func TestCreateTask_ValidationErrors(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployer, "boss@example.com")
	catID := env.category(t, token, "Work")

	body := taskBody("Hi", catID)
	body["due_date"] = time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	w := env.do(t, http.MethodPost, "/api/v1/tasks/", token, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var fields map[string][]string
	if err := json.Unmarshal(decode(t, w).Errors, &fields); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	for _, f := range []string{"title", "due_date"} {
		if len(fields[f]) == 0 {
			t.Errorf("expected error for %s, got %v", f, fields)
		}
	}
}

func TestCategoryDelete_Restrict(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployer, "boss@example.com")
	used := env.category(t, token, "Work")
	unused := env.category(t, token, "Home")

	if w := env.do(t, http.MethodPost, "/api/v1/tasks/", token, taskBody("Write report", used)); w.Code != http.StatusOK {
		t.Fatalf("create task: %d %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/categories/%d/", used), token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 deleting referenced category, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/categories/%d/", unused), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting unused category, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/categories/%d/", unused), token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCategoryList_Envelope(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployer, "boss@example.com")
	env.category(t, token, "Work")

	// Both path forms are routed
	for _, path := range []string{"/api/v1/categories/", "/api/v1/categories"} {
		w := env.do(t, http.MethodGet, path, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var page service.Page[models.Category]
		if err := json.Unmarshal(decode(t, w).Data, &page); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		if page.Count != 1 || len(page.Results) != 1 || page.Results[0].Name != "Work" {
			t.Errorf("%s: unexpected page %+v", path, page)
		}
	}
}

func TestQueryCountHeaders(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployer, "boss@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/tasks/", token, nil)
	if w.Header().Get(middleware.HeaderQueryCount) == "" {
		t.Error("expected X-Query-Count header")
	}
	if w.Header().Get(middleware.HeaderTotalTime) == "" {
		t.Error("expected X-Total-Time header")
	}
}

func TestCurrentUser(t *testing.T) {
	env := setupRouter(t, nil)
	token := env.login(t, models.RoleEmployee, "worker@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/users/me/", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var me struct {
		Email  string   `json:"email"`
		Role   string   `json:"role"`
		Groups []string `json:"groups"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &me); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if me.Email != "worker@example.com" || me.Role != string(models.RoleEmployee) {
		t.Errorf("unexpected user %+v", me)
	}
	if len(me.Groups) != 1 || me.Groups[0] != models.GroupEmployees {
		t.Errorf("expected groups [%s], got %v", models.GroupEmployees, me.Groups)
	}
}

func TestAdminCreateUser(t *testing.T) {
	env := setupRouter(t, nil)
	admin := env.login(t, models.RoleAdmin, "admin@example.com")
	employer := env.login(t, models.RoleEmployer, "boss@example.com")

	body := map[string]string{"email": "new@example.com", "password": "pw-123456", "role": "employee"}
	if w := env.do(t, http.MethodPost, "/api/v1/admin/users/", employer, body); w.Code != http.StatusForbidden {
		t.Errorf("employer: expected 403, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/admin/users/", admin, body)
	if w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/admin/users/", admin, body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	body["role"] = "admin"
	body["email"] = "other@example.com"
	w = env.do(t, http.MethodPost, "/api/v1/admin/users/", admin, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role: expected 400, got %d", w.Code)
	}
	var fields map[string][]string
	if err := json.Unmarshal(decode(t, w).Errors, &fields); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	if len(fields["role"]) == 0 {
		t.Errorf("expected role error keyed by json name, got %v", fields)
	}

	w = env.do(t, http.MethodGet, "/api/v1/admin/users/", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var page service.Page[json.RawMessage]
	if err := json.Unmarshal(decode(t, w).Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Count != 3 {
		t.Errorf("expected 3 users, got %d", page.Count)
	}
}

func TestTokenRefresh(t *testing.T) {
	env := setupRouter(t, nil)
	if _, err := env.users.CreateEmployee(context.Background(), service.CreateUserInput{Email: "worker@example.com", Password: "pw"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/v1/token", "", map[string]string{"email": "worker@example.com", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var tokens auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = env.do(t, http.MethodPost, "/api/v1/token/refresh/", "", map[string]string{"refresh": tokens.Refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// An access token is not accepted as a refresh token
	w = env.do(t, http.MethodPost, "/api/v1/token/refresh/", "", map[string]string{"refresh": tokens.Access})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 refreshing with access token, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/token/", "", map[string]string{"email": "worker@example.com", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", w.Code)
	}
}

func TestTokenRateLimited(t *testing.T) {
	env := setupRouter(t, middleware.NewMemoryLimiter(0.001, 1))
	creds := map[string]string{"email": "nobody@example.com", "password": "x"}

	if w := env.do(t, http.MethodPost, "/api/v1/token/", "", creds); w.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt: expected 401, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/token/", "", creds); w.Code != http.StatusTooManyRequests {
		t.Errorf("second attempt: expected 429, got %d", w.Code)
	}
}

func TestGoogleDisabled(t *testing.T) {
	env := setupRouter(t, nil)
	w := env.do(t, http.MethodPost, "/api/v1/google/", "", map[string]string{"id_token": "abcdefgh"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when Google sign-in is not configured, got %d", w.Code)
	}
}
