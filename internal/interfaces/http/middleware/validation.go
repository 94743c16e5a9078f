package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes binding errors report json field names instead of Go
// struct field names. Call once before building the engine.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(boundFieldName)
}

// boundFieldName resolves the reported field name from the json tag, falling
// back to the form tag for query-bound structs. A "-" tag hides the field.
func boundFieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

// FormatValidationErrors turns a binding error into the standard error
// envelope with one detail per failed field
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return dto.NewValidationErrorResponse("Request validation failed", requestID, nil)
	}

	details := make([]dto.ValidationDetail, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		details = append(details, dto.ValidationDetail{
			Field:   fe.Field(),
			Message: validationMessage(fe),
		})
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes the validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, getRequestIDFromContext(c)))
}

func getRequestIDFromContext(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// validationMessage renders one failed constraint for API consumers
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "numeric":
		return "Must be numeric"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "min", "max":
		return sizeMessage(fe)
	case "gt":
		return "Must be greater than " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "lt":
		return "Must be less than " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	default:
		return "Invalid value"
	}
}

// sizeMessage phrases min/max in characters for strings, plain bounds
// otherwise
func sizeMessage(fe validator.FieldError) string {
	bound := "Must be at least "
	if fe.Tag() == "max" {
		bound = "Must be at most "
	}
	if fe.Type().Kind() == reflect.String {
		return bound + fe.Param() + " characters"
	}
	return bound + fe.Param()
}
