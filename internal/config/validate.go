package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and reports every failing field.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("abs_or_home", validateAbsOrHome); err != nil {
		return fmt.Errorf("register abs_or_home validator: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, formatValidationErrors(err))
	}
	return nil
}

// validateAbsOrHome accepts absolute paths and paths under "~".
func validateAbsOrHome(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	return filepath.IsAbs(p) || p == "~" || strings.HasPrefix(p, "~/")
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "abs_or_home":
		return fmt.Sprintf("%s must be an absolute path or start with ~/ (got %q)", field, e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "excludes":
		return fmt.Sprintf("%s must not contain %q", field, e.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, e.Tag())
}
