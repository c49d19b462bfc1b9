package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator builds the request validator. Field names in error messages
// follow the json tags clients send.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validationMessage renders validator errors as "field: problem; ...".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, e.Namespace()[strings.Index(e.Namespace(), ".")+1:]+": "+describeFieldError(e))
	}
	return strings.Join(messages, "; ")
}

func describeFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " long"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
