// Package validation registers the library's custom validator tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	TagPhone      = "phone"
	TagNotNumeric = "notnumeric"
	TagBookISBN   = "bookisbn"
)

var (
	phoneNoise = regexp.MustCompile(`[\s\-()+]`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// New returns a validator with the custom tags registered and field names
// reported by their json tag.
func New() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

// Register adds the custom tags to an existing validator.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation(TagPhone, func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation(TagNotNumeric, func(fl validator.FieldLevel) bool {
		return !digitsOnly.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation(TagBookISBN, func(fl validator.FieldLevel) bool {
		return ValidISBN(fl.Field().String())
	})
}

// ValidPhone accepts 10 to 15 digits once spaces, dashes, parentheses and
// plus signs are removed.
func ValidPhone(raw string) bool {
	digits := phoneNoise.ReplaceAllString(raw, "")
	if !digitsOnly.MatchString(digits) {
		return false
	}
	return len(digits) >= 10 && len(digits) <= 15
}

// NormalizeISBN strips spaces and dashes.
func NormalizeISBN(raw string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
}

// ValidISBN accepts 10 or 13 characters once spaces and dashes are removed.
func ValidISBN(raw string) bool {
	n := len(NormalizeISBN(raw))
	return n == 10 || n == 13
}

// Describe renders validator errors as "field: reason; field: reason".
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), reason(fe)))
	}
	return strings.Join(parts, "; ")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "uuid", "uuid4":
		return "must be a valid id"
	case TagPhone:
		return "must contain 10 to 15 digits"
	case TagNotNumeric:
		return "cannot contain only numbers"
	case TagBookISBN:
		return "must contain 10 or 13 characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
