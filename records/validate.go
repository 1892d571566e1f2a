package records

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kjk/testdesk/config"
)

// ValidationError lists required fields that are missing and fields
// whose value is not one of the allowed choices
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// IsBlank returns true for nil, whitespace-only strings and zero numbers.
// A required field with a blank value is missing.
func IsBlank(v any) bool {
	switch v := NormalizeValue(v).(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case float64:
		return v == 0
	}
	return false
}

// Validate checks that required fields of rec are not blank and that
// department and progress are one of the configured choices.
// Returns *ValidationError or nil.
func Validate(rec *Record, cfg *config.Config) error {
	required := cfg.RequiredFields
	if required == nil {
		required = DefaultRequiredFields
	}
	var e ValidationError
	for _, field := range required {
		if IsBlank(rec.Get(field)) {
			e.Missing = append(e.Missing, field)
		}
	}
	checkChoice := func(field string, choices []string) {
		v := rec.String(field)
		if len(choices) == 0 || v == "" {
			return
		}
		if !slices.Contains(choices, v) {
			e.Invalid = append(e.Invalid, fmt.Sprintf("%s '%s'", field, v))
		}
	}
	checkChoice(FieldDepartment, cfg.Departments)
	checkChoice(FieldProgress, cfg.Progress)

	if len(e.Missing) == 0 && len(e.Invalid) == 0 {
		return nil
	}
	return &e
}
