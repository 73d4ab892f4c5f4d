package utils

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Convert re-shapes v into T through a JSON round trip.
func Convert[T any](v any) (T, error) {
	var result T

	if typed, ok := v.(T); ok {
		return typed, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return result, err
	}

	if err = json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("value is not a valid %T: %w", result, err)
	}

	return result, nil
}

// ConvertAndValidate is Convert followed by struct validation.
func ConvertAndValidate[T any](v any) (T, error) {
	result, err := Convert[T](v)
	if err != nil {
		return result, err
	}

	if err = validate.Struct(result); err != nil {
		return result, ValidationErrorToString(result, err)
	}

	return result, nil
}

func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, ValidationErrorToString(value, err)
	}

	return value, nil
}

func ValidateValue(value any, tag string) error {
	err := validate.Var(value, tag)
	if err != nil {
		return ValidationErrorToString(value, err)
	}
	return nil
}

func ValidationErrorToString(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msg := ""
	for _, fe := range verrs {
		msg += fmt.Sprintf("\n • Failed %T validation for field '%s': rule '%s' expected '%s', got '%v'.", input, fe.StructField(), fe.Tag(), fe.Param(), fe.Value())
	}
	return errors.New(msg)
}
