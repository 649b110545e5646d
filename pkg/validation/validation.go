// Package validation wraps a shared go-playground/validator instance and maps
// its failures onto errutil.ValidationFailed details.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"creatorhub-platform/pkg/errutil"

	"github.com/go-playground/validator/v10"
)

const TagVipCodeCharset = "vipcode_charset"

var vipCodeCharset = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Get returns the process-wide validator with custom tags registered.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation(TagVipCodeCharset, func(fl validator.FieldLevel) bool {
			return vipCodeCharset.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct runs struct tags on s and returns a ValidationFailed error
// listing every failed field, or nil.
func ValidateStruct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errutil.ValidationFailed("validation failed", err)
	}

	details := make([]errutil.Detail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, errutil.Detail{Field: fe.Field(), Message: message(fe)})
	}
	return errutil.ValidationFailed("validation failed", nil, errutil.WithDetails(details...))
}

// Var reports whether value passes tag.
func Var(value any, tag string) bool {
	return Get().Var(value, tag) == nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case TagVipCodeCharset:
		return "invalid_characters"
	default:
		return "failed " + fe.Tag()
	}
}
