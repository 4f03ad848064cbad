package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/labstack/echo/v4"
)

// maxBodyBytes bounds webhook-style bodies read without echo's binder.
const maxBodyBytes = 1 << 20

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ReadAndValidateRequest binds with echo's default binder (path, query, body by content type),
// applies `default` tags, then validates.
func ReadAndValidateRequest(c echo.Context, req interface{}) *AppError {
	if err := c.Bind(req); err != nil {
		return BadRequestError("Invalid request").WithError(err)
	}
	return finish(c.Request().Context(), req)
}

// ReadAndValidateQuery binds query parameters only.
func ReadAndValidateQuery(c echo.Context, req interface{}) *AppError {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		return BadRequestError("Invalid query parameters").WithError(err)
	}
	return finish(c.Request().Context(), req)
}

// ReadAndValidateJSON decodes the body as JSON whatever the Content-Type says.
// Alerting tools commonly post JSON as text/plain.
func ReadAndValidateJSON(c echo.Context, req interface{}) *AppError {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return BadRequestError("Invalid request body").WithError(err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, req); err != nil {
		return BadRequestError("Invalid request body").WithError(err)
	}
	return finish(c.Request().Context(), req)
}

// Validate runs `default` tags and struct validation without binding.
func Validate(ctx context.Context, req interface{}) *AppError {
	return finish(ctx, req)
}

func finish(ctx context.Context, req interface{}) *AppError {
	if err := defaults.Set(req); err != nil {
		return InternalError("Invalid request defaults").WithError(err)
	}
	if err := validate.StructCtx(ctx, req); err != nil {
		return ValidationFailedError("Invalid request", validationDetails(err)).WithError(err)
	}
	return nil
}

func validationDetails(err error) []ValidationError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errs := make([]ValidationError, 0, len(validationErrors))
		for _, e := range validationErrors {
			errs = append(errs, ValidationError{
				Code:    "ERR_" + strings.ToUpper(e.Tag()),
				Field:   e.Field(),
				Message: getErrorMessage(e),
				Params:  getErrorParams(e),
			})
		}
		return errs
	}

	return []ValidationError{{
		Code:    "ERR_UNKNOWN",
		Message: err.Error(),
	}}
}

// IsMissingField reports whether any detail came from a required/notblank rule.
func IsMissingField(details []ValidationError) bool {
	for _, d := range details {
		if d.Code == "ERR_REQUIRED" || d.Code == "ERR_NOTBLANK" {
			return true
		}
	}
	return false
}

func getErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Type().Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Type().Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func getErrorParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Split(fe.Param(), " ")}
	}
	return nil
}
