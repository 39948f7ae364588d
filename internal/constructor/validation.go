package constructor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "distconsole/internal/errors"
	"distconsole/pkg/contracts/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateSet checks set against the field constraints declared on the
// domain types. It returns *errors.ValidationErrors listing every violation.
func ValidateSet(set domain.ConfigurationSet) error {
	err := getValidator().Struct(set)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &apperrors.ValidationErrors{Errors: make([]apperrors.ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		out.Errors = append(out.Errors, apperrors.ValidationError{
			Field:   field,
			Message: messageFor(field, fe),
		})
	}
	return out
}

// fieldPath drops the root struct name: "ConfigurationSet.configurations[0].column"
// becomes "configurations[0].column".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func messageFor(field string, fe validator.FieldError) string {
	switch {
	case field == "configurations":
		return "at least one configuration is required"
	case strings.HasSuffix(field, ".column"):
		return "column is required"
	case strings.HasSuffix(field, ".operations"):
		return "at least one operation is required"
	case strings.HasSuffix(field, ".kind") && fe.Tag() == "oneof":
		return fmt.Sprintf("unknown operation kind %q", fe.Value())
	case strings.HasSuffix(field, ".kind"):
		return "operation kind is required"
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}
