package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
)

var (
	validate *validator.Validate
	once     sync.Once

	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	domainPattern   = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("tenant_domain", func(fl validator.FieldLevel) bool {
			return IsDomain(fl.Field().String())
		})
		_ = validate.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
			return IsStrongPassword(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s using its `validate` tags and returns an *apperr.AppError
// listing every failing field, or nil.
func Struct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("validation failed").WithCause(err)
	}

	fields := make([]FieldError, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg := message(e)
		fields = append(fields, FieldError{Field: e.Field(), Message: msg})
		messages = append(messages, e.Field()+": "+msg)
	}

	return apperr.Validation(strings.Join(messages, "; ")).WithDetail("fields", fields)
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + e.Param() + " is empty"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "username":
		return "may only contain letters, numbers, underscores and hyphens"
	case "tenant_domain":
		return "must be a valid domain name"
	case "strong_password":
		return "must contain an uppercase letter, a lowercase letter and a digit"
	default:
		return "is invalid"
	}
}

// IsDomain reports whether s looks like a lower-case DNS name with a TLD.
func IsDomain(s string) bool {
	return len(s) <= 253 && domainPattern.MatchString(s)
}

// IsStrongPassword requires upper, lower and digit; length is checked by `min`.
func IsStrongPassword(s string) bool {
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}
