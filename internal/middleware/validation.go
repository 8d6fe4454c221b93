package middleware

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"mktsummary/internal/calendar"
	apierrors "mktsummary/internal/errors"
)

const maxBodySize = 1 << 20

// Validator decodes and validates request payloads using struct tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator that reports fields by their JSON names
// and understands the "datepattern" tag.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("datepattern", isDatePattern)
	return &Validator{validate: v}
}

// Struct validates s and returns nil or a VALIDATION_FAILED error.
func (v *Validator) Struct(s interface{}) *apierrors.APIError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

// DecodeJSON reads a JSON body of bounded size into dst and validates it.
func (v *Validator) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) *apierrors.APIError {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := render.DecodeJSON(body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierrors.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apierrors.New(http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
		default:
			return apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_JSON", "Request body contains invalid JSON", err.Error())
		}
	}
	return v.Struct(dst)
}

// RequireJSON rejects requests with a body that is not application/json.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				apierrors.WriteError(w, apierrors.New(http.StatusUnsupportedMediaType,
					"UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// QueryEnum returns the query parameter, or def when absent. Values outside
// allowed yield a validation error.
func QueryEnum(r *http.Request, param string, allowed []string, def string) (string, *apierrors.APIError) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return def, nil
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", apierrors.NewValidationErrors([]apierrors.ValidationError{{
		Field:   param,
		Message: fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", ")),
	}})
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "datetime":
		return fmt.Sprintf("%s must be a date in yyyy-MM-dd form", field)
	case "datepattern":
		return fmt.Sprintf("%s is not a usable file name pattern", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isDatePattern accepts date format patterns that produce safe file names.
func isDatePattern(fl validator.FieldLevel) bool {
	_, err := calendar.Compile(fl.Field().String())
	return err == nil
}
