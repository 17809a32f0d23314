package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ThomasChan/Farm-Land/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound            = "NOT_FOUND"
	ErrBadRequest          = "BAD_REQUEST"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
	ErrUnauthorized        = "UNAUTHORIZED"
	ErrConflict            = "CONFLICT"
	ErrUnprocessableEntity = "UNPROCESSABLE_ENTITY"
	ErrBadGateway          = "BAD_GATEWAY"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	warn(c, http.StatusNotFound, ErrNotFound, "Resource not found", message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	warn(c, http.StatusBadRequest, ErrBadRequest, "Bad request", message, details)
}

// ValidationError returns a 400 Bad Request error response with one message
// per failed field, keyed by field name.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}
	warn(c, http.StatusBadRequest, ErrValidation, "Validation error", "Validation failed for one or more fields", details)
}

// Unauthorized returns a 401 Unauthorized error response.
func Unauthorized(c *gin.Context, message string) {
	warn(c, http.StatusUnauthorized, ErrUnauthorized, "Unauthorized", message, nil)
}

// Conflict returns a 409 Conflict error response, used when the target row
// already has a request in flight.
func Conflict(c *gin.Context, message string) {
	warn(c, http.StatusConflict, ErrConflict, "Conflict", message, nil)
}

// UnprocessableEntity returns a 422 Unprocessable Entity error response with
// optional details, used for geometry and style values that cannot be applied.
func UnprocessableEntity(c *gin.Context, message string, details map[string]interface{}) {
	warn(c, http.StatusUnprocessableEntity, ErrUnprocessableEntity, "Unprocessable entity", message, details)
}

// InternalServerError returns a 500 Internal Server Error response.
// The error is logged and attached to the context; the client only sees message.
func InternalServerError(c *gin.Context, message string, err error) {
	fail(c, http.StatusInternalServerError, ErrInternalServer, "Internal server error", message, err)
}

// BadGateway returns a 502 Bad Gateway error response for a failed call to
// the layer collection or auth endpoint.
func BadGateway(c *gin.Context, message string, err error) {
	fail(c, http.StatusBadGateway, ErrBadGateway, "Upstream request failed", message, err)
}

// warn logs a client error at warn level and writes the envelope.
func warn(c *gin.Context, status int, code, logMsg, message string, details map[string]interface{}) {
	if log := middleware.GetLogger(c); log != nil {
		fields := requestFields(c, message)
		if details != nil {
			fields["details"] = details
		}
		log.Warn(logMsg, fields)
	}
	respond(c, status, code, message, details)
}

// fail logs a server-side error and writes the envelope without its details.
func fail(c *gin.Context, status int, code, logMsg, message string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		fields := requestFields(c, message)
		fields["method"] = c.Request.Method
		log.Error(logMsg, err, fields)
	}
	if err != nil {
		_ = c.Error(err)
	}
	respond(c, status, code, message, nil)
}

func requestFields(c *gin.Context, message string) map[string]interface{} {
	return map[string]interface{}{
		"message":    message,
		"request_id": middleware.GetRequestID(c),
		"path":       c.Request.URL.Path,
	}
}

func respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(c),
		},
	})
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "len":
		return "Must have length of " + err.Param()
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lt":
		return "Must be less than " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "url":
		return "Must be a valid URL"
	case "uuid":
		return "Must be a valid UUID"
	case "iscolor":
		return "Must be a valid color"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
