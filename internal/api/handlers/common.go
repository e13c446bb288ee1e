package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/taskhub-dev/taskhub/internal/auth"
	"github.com/taskhub-dev/taskhub/internal/models"
	"github.com/taskhub-dev/taskhub/internal/service"
)

// Response is the envelope returned by every resource and auth endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func failure(c *gin.Context, status int, message string, errs any) {
	c.JSON(status, Response{Success: false, Message: message, Errors: errs})
}

// UseJSONFieldNames makes binding errors report json field names.
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return field.Name
	})
}

// handleServiceError maps service errors to HTTP responses. message
// describes the failed operation.
func handleServiceError(c *gin.Context, err error, message string, notFound string) {
	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError
	switch {
	case errors.Is(err, service.ErrNotFound):
		failure(c, http.StatusNotFound, notFound, nil)
	case errors.As(err, &validationErr):
		var errs any
		if len(validationErr.Fields) > 0 {
			errs = validationErr.Fields
		} else {
			errs = validationErr.Message
		}
		failure(c, http.StatusBadRequest, message, errs)
	case errors.As(err, &conflictErr):
		failure(c, http.StatusConflict, message, conflictErr.Message)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		failure(c, http.StatusUnauthorized, message, err.Error())
	default:
		slog.Error(message, "path", c.Request.URL.Path, "error", err)
		failure(c, http.StatusInternalServerError, message, nil)
	}
}

// handleBindError reports a request that could not be decoded or validated.
func handleBindError(c *gin.Context, err error, message string) {
	failure(c, http.StatusBadRequest, message, bindErrors(err))
}

func bindErrors(err error) any {
	var validationErrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var numErr *strconv.NumError
	switch {
	case errors.As(err, &validationErrs):
		fields := make(map[string][]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
		}
		return fields
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return map[string][]string{typeErr.Field: {"Invalid value."}}
	case errors.Is(err, io.EOF):
		return "Request body is empty."
	case errors.As(err, &numErr):
		return fmt.Sprintf("Invalid number %q.", numErr.Num)
	default:
		return err.Error()
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	default:
		return "Invalid value."
	}
}

// getUser returns the authenticated user or writes a 401.
func getUser(c *gin.Context) (*models.User, bool) {
	user, err := auth.UserFromContext(c)
	if err != nil {
		failure(c, http.StatusUnauthorized, "Authentication credentials were not provided.", nil)
		return nil, false
	}
	return user, true
}

// parseID reads the numeric :id path parameter or writes a 404.
func parseID(c *gin.Context, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		failure(c, http.StatusNotFound, notFound, nil)
		return 0, false
	}
	return uint(id), true
}
