// Package validator provides struct validation with the console's custom tags.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openlearn/admin-api/pkg/domain/bulkop"
)

// roleNameRegex validates role names: lowercase letters, digits and
// underscores, starting with a letter.
var roleNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("bulk_kind", validateBulkKind)
	_ = v.RegisterValidation("role_name", validateRoleName)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   fieldPath(e),
			Message: formatErrorMessage(e),
		})
	}
	return result
}

// validateBulkKind validates that a string is a bulk operation kind.
func validateBulkKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return bulkop.Kind(value).IsValid()
}

// validateRoleName validates the shape of a role name. Whether the role
// exists is decided against the loaded hierarchy, not here.
func validateRoleName(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return roleNameRegex.MatchString(value)
}

func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s item(s)", e.Param())
	case "max":
		return fmt.Sprintf("must have at most %s item(s) or characters", e.Param())
	case "dive":
		return "contains an invalid item"
	case "bulk_kind":
		return "must be one of: " + formatKinds()
	case "role_name":
		return "must be a lowercase role name"
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// fieldPath returns the snake_case path of the field, keeping slice
// indexes: TargetUserIDs[2] becomes target_user_ids[2].
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return toSnakeCase(ns)
}

// toSnakeCase converts PascalCase to snake_case. An acronym stays one word
// when it ends the name or is followed by a lowercase plural.
func toSnakeCase(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' && ((prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9')) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.ToLower(b.String())
}

func formatKinds() string {
	kinds := bulkop.AllKinds()
	strs := make([]string, len(kinds))
	for i, k := range kinds {
		strs[i] = k.String()
	}
	return strings.Join(strs, ", ")
}
