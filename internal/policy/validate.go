package policy

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ruleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report YAML field names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rule_id", func(fl validator.FieldLevel) bool {
		return ruleIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateStruct runs tag validation on a catalog file or pack.
func validateStruct(v *validator.Validate, s any) error {
	if err := v.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// validateRules checks what struct tags cannot express: unique ids and
// non-empty matches. seen carries ids across the base catalog and packs.
func validateRules(rules []Rule, seen map[string]bool) error {
	for _, r := range rules {
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if r.Match.empty() {
			return fmt.Errorf("rule %q: match has no predicates", r.ID)
		}
		if r.Match.PathScope != "" && len(r.Match.PathsAny) == 0 {
			return fmt.Errorf("rule %q: path_scope without paths_any", r.ID)
		}
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %q)", field, e.Param(), e.Value())
	case "rule_id":
		return fmt.Sprintf("%s must be lowercase letters, digits, '.', '_' or '-' (got %q)", field, e.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
