package captcha

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorV10 "github.com/go-playground/validator/v10"
)

var validator = validatorV10.New(validatorV10.WithRequiredStructEnabled())

// Validate checks the constraints of a challenge. Every failure is a
// KindConfiguration *Error; Solve calls it before any request is made.
func Validate(ch Challenge) error {
	if ch == nil {
		return configError("nil challenge")
	}
	if v := reflect.ValueOf(ch); v.Kind() == reflect.Pointer && v.IsNil() {
		return configError("nil %T challenge", ch)
	}
	if _, ok := typeNames[ch.Type()]; !ok {
		return configError("unknown challenge type %s", ch.Type())
	}

	if err := validator.Struct(ch); err != nil {
		var fieldErrs validatorV10.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &Error{Kind: KindConfiguration, Message: ch.Type().String(), Err: err}
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Field()+" "+validationMessage(fe))
		}
		return configError("%s: %s", ch.Type(), strings.Join(msgs, "; "))
	}

	if t, ok := as[ImageToText](ch); ok {
		c := t.Constraints
		if c.MaxLength > 0 && c.MaxLength < c.MinLength {
			return configError("%s: MaxLength %d below MinLength %d", ch.Type(), c.MaxLength, c.MinLength)
		}
	}
	return nil
}

func validationMessage(fe validatorV10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hostname", "hostname_rfc1123":
		return "must be a bare hostname"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}

// as unwraps ch into T, accepting both T and *T.
func as[T Challenge](ch Challenge) (T, bool) {
	switch v := any(ch).(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}
