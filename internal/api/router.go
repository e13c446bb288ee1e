package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/taskhub-dev/taskhub/internal/api/handlers"
	"github.com/taskhub-dev/taskhub/internal/api/middleware"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/config"
	"github.com/taskhub-dev/taskhub/internal/crypto"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/service"
	"gorm.io/gorm"
)

const sessionName = "taskhub_session"

// Deps are the collaborators the router serves.
type Deps struct {
	DB            *gorm.DB
	Authenticator auth.Authenticator
	Users         *service.UserService
	Categories    *service.CategoryService
	Tasks         *service.TaskService
	// Google is nil when Google sign-in is not configured.
	Google *auth.GoogleAuthenticator
	// Limiter guards the token endpoints. Nil disables rate limiting.
	Limiter middleware.Limiter
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	// Set Gin mode
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.UseJSONFieldNames()

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{middleware.HeaderQueryCount, middleware.HeaderTotalTime},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	router.Use(middleware.QueryCount())

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Authenticator, deps.Users, deps.Google)
	categoryHandler := handlers.NewCategoryHandler(deps.DB, deps.Categories)
	taskHandler := handlers.NewTaskHandler(deps.DB, deps.Tasks)
	adminHandler := handlers.NewAdminHandler(deps.DB, deps.Users)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", handlers.HealthCheck)
		public.GET("/version", handlers.GetVersion)

		tokens := public.Group("")
		if deps.Limiter != nil {
			tokens.Use(middleware.RateLimit(deps.Limiter))
		}
		route(tokens, http.MethodPost, "/token", authHandler.ObtainToken)
		route(tokens, http.MethodPost, "/token/refresh", authHandler.RefreshToken)

		google := public.Group("/google")
		google.Use(sessions.Sessions(sessionName, newSessionStore(cfg)))
		route(google, http.MethodPost, "", authHandler.GoogleSignIn)
		google.GET("/login", authHandler.GoogleLogin)
		google.GET("/callback", authHandler.GoogleCallback)
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(deps.Authenticator.Middleware())
	{
		route(protected, http.MethodGet, "/users/me", middleware.RequireActive(), handlers.GetCurrentUser)

		categories := protected.Group("/categories")
		categories.Use(middleware.RequireModelPermission(models.ResourceCategory))
		route(categories, http.MethodGet, "", categoryHandler.ListCategories)
		route(categories, http.MethodPost, "", categoryHandler.CreateCategory)
		route(categories, http.MethodGet, "/:id", categoryHandler.GetCategory)
		route(categories, http.MethodPut, "/:id", categoryHandler.UpdateCategory)
		route(categories, http.MethodPatch, "/:id", categoryHandler.PatchCategory)
		route(categories, http.MethodDelete, "/:id", categoryHandler.DeleteCategory)

		tasks := protected.Group("/tasks")
		tasks.Use(middleware.RequireModelPermission(models.ResourceTask))
		route(tasks, http.MethodGet, "", taskHandler.ListTasks)
		route(tasks, http.MethodPost, "", taskHandler.CreateTask)
		route(tasks, http.MethodGet, "/:id", taskHandler.GetTask)
		route(tasks, http.MethodPut, "/:id", taskHandler.UpdateTask)
		route(tasks, http.MethodPatch, "/:id", taskHandler.PatchTask)
		route(tasks, http.MethodDelete, "/:id", taskHandler.DeleteTask)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		route(admin, http.MethodGet, "/users", adminHandler.ListUsers)
		route(admin, http.MethodPost, "/users", adminHandler.CreateUser)
	}

	// Swagger documentation
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	slog.Info("API router initialized", "mode", cfg.Server.Mode)
	return router
}

// route registers path with and without a trailing slash.
func route(g *gin.RouterGroup, method, path string, h ...gin.HandlerFunc) {
	path = strings.TrimSuffix(path, "/")
	g.Handle(method, path, h...)
	g.Handle(method, path+"/", h...)
}

func newSessionStore(cfg *config.Config) sessions.Store {
	authKey, encKey, err := crypto.SessionKeys(cfg.Auth.Google.SessionSecret)
	if err != nil {
		// Sessions then only survive until restart
		slog.Warn("No session secret configured, using ephemeral session keys", "error", err)
		authKey, _ = crypto.RandomKey()
		encKey, _ = crypto.RandomKey()
	}
	store := cookie.NewStore(authKey, encKey)
	store.Options(sessions.Options{
		Path:     "/api/v1/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   cfg.Server.Mode == "production",
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}
