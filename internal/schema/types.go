package schema

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// FieldType enumerates the supported dynamic form field types
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldCheckbox FieldType = "checkbox"
	FieldDate     FieldType = "date"
)

// RuleType enumerates the supported validation rule types
type RuleType string

const (
	RuleMin     RuleType = "min"
	RuleMax     RuleType = "max"
	RulePattern RuleType = "pattern"
	RuleCustom  RuleType = "custom" // declared extension point, never executed in-core
)

// FieldOption is one selectable option of a select field
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ValidationRule constrains a submitted field value.
// Value carries the rule operand: a number for min/max, a regular
// expression source string for pattern.
type ValidationRule struct {
	Type    RuleType    `json:"type"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// FormField is a single SOP step or report form field.
// Within one definition ids, names and orders are each unique.
type FormField struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Label           string           `json:"label"`
	Type            FieldType        `json:"type"`
	Required        bool             `json:"required"`
	Order           int              `json:"order"`
	Options         []FieldOption    `json:"options,omitempty"`
	ValidationRules []ValidationRule `json:"validationRules,omitempty"`
}

// ValidationError is a single structural or content problem.
// Field is empty for global (definition-level) errors.
type ValidationError struct {
	Field   string      `json:"field,omitempty"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Result aggregates everything found while validating a definition or a
// submission. Errors is the flat list; FieldErrors keys the field-scoped
// subset by field name; GlobalErrors holds definition-level problems.
type Result struct {
	IsValid      bool                         `json:"isValid"`
	Errors       []ValidationError            `json:"errors"`
	FieldErrors  map[string][]ValidationError `json:"fieldErrors"`
	GlobalErrors []ValidationError            `json:"globalErrors"`
}

func newResult() *Result {
	return &Result{
		IsValid:     true,
		Errors:      []ValidationError{},
		FieldErrors: map[string][]ValidationError{},
	}
}

func (r *Result) addFieldError(e ValidationError) {
	r.IsValid = false
	r.Errors = append(r.Errors, e)
	r.FieldErrors[e.Field] = append(r.FieldErrors[e.Field], e)
}

func (r *Result) addGlobalError(e ValidationError) {
	r.IsValid = false
	r.Errors = append(r.Errors, e)
	r.GlobalErrors = append(r.GlobalErrors, e)
}

// ValidationFailedError carries the full structured result when Enforce or
// a definition write rejects input. The HTTP layer maps it to 422.
type ValidationFailedError struct {
	Result *Result
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s)", len(e.Result.Errors))
}

// DecodeDefinition parses a stored JSONB definition column back into fields
func DecodeDefinition(raw datatypes.JSON) ([]FormField, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields []FormField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode form definition: %w", err)
	}
	return fields, nil
}

// EncodeDefinition serializes fields for a JSONB definition column
func EncodeDefinition(fields []FormField) (datatypes.JSON, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form definition: %w", err)
	}
	return datatypes.JSON(raw), nil
}
