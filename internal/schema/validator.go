// Package schema implements the dynamic form engine: structural validation
// of form definitions, validation and sanitization of submissions against
// them, and the per-product definition store with frozen snapshots.
package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var fieldTypes = map[FieldType]bool{
	FieldText:     true,
	FieldNumber:   true,
	FieldSelect:   true,
	FieldTextarea: true,
	FieldCheckbox: true,
	FieldDate:     true,
}

var ruleTypes = map[RuleType]bool{
	RuleMin:     true,
	RuleMax:     true,
	RulePattern: true,
	RuleCustom:  true,
}

// dateLayouts are the accepted submission formats for date fields
var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

// Validator validates form definitions and submissions. Stateless and safe
// for concurrent use.
type Validator struct{}

// NewValidator creates a Validator
func NewValidator() *Validator { return &Validator{} }

// ValidateDefinition checks a form definition structurally: non-empty,
// every field fully specified with a known type, ids/names/orders pairwise
// unique, select fields with at least one well-formed option, rules with a
// known type and a message. All violations are collected, none
// short-circuit.
func (v *Validator) ValidateDefinition(fields []FormField) *Result {
	res := newResult()

	if len(fields) == 0 {
		res.addGlobalError(ValidationError{
			Code:    "EMPTY_DEFINITION",
			Message: "form definition must contain at least one field",
		})
		return res
	}

	seenIDs := map[string]bool{}
	seenNames := map[string]bool{}
	seenOrders := map[int]bool{}

	for i, f := range fields {
		ref := f.Name
		if ref == "" {
			ref = fmt.Sprintf("field[%d]", i)
		}

		if f.ID == "" {
			res.addFieldError(ValidationError{Field: ref, Code: "MISSING_ID", Message: "field id is required"})
		} else if seenIDs[f.ID] {
			res.addFieldError(ValidationError{Field: ref, Code: "DUPLICATE_ID", Message: fmt.Sprintf("duplicate field id %q", f.ID), Value: f.ID})
		} else {
			seenIDs[f.ID] = true
		}

		if f.Name == "" {
			res.addFieldError(ValidationError{Field: ref, Code: "MISSING_NAME", Message: "field name is required"})
		} else if seenNames[f.Name] {
			res.addFieldError(ValidationError{Field: ref, Code: "DUPLICATE_NAME", Message: fmt.Sprintf("duplicate field name %q", f.Name), Value: f.Name})
		} else {
			seenNames[f.Name] = true
		}

		if f.Label == "" {
			res.addFieldError(ValidationError{Field: ref, Code: "MISSING_LABEL", Message: "field label is required"})
		}

		if !fieldTypes[f.Type] {
			res.addFieldError(ValidationError{Field: ref, Code: "INVALID_FIELD_TYPE", Message: fmt.Sprintf("unknown field type %q", f.Type), Value: string(f.Type)})
		}

		if seenOrders[f.Order] {
			res.addFieldError(ValidationError{Field: ref, Code: "DUPLICATE_ORDER", Message: fmt.Sprintf("duplicate field order %d", f.Order), Value: f.Order})
		} else {
			seenOrders[f.Order] = true
		}

		if f.Type == FieldSelect {
			v.validateOptions(res, ref, f)
		}

		for _, rule := range f.ValidationRules {
			if !ruleTypes[rule.Type] {
				res.addFieldError(ValidationError{Field: ref, Code: "INVALID_RULE_TYPE", Message: fmt.Sprintf("unknown rule type %q", rule.Type), Value: string(rule.Type)})
			}
			if rule.Message == "" {
				res.addFieldError(ValidationError{Field: ref, Code: "MISSING_RULE_MESSAGE", Message: "validation rule must declare a message"})
			}
		}
	}

	return res
}

func (v *Validator) validateOptions(res *Result, ref string, f FormField) {
	if len(f.Options) == 0 {
		res.addFieldError(ValidationError{Field: ref, Code: "MISSING_OPTIONS", Message: "select field must declare at least one option"})
		return
	}
	seenValues := map[string]bool{}
	for _, opt := range f.Options {
		if opt.Value == "" || opt.Label == "" {
			res.addFieldError(ValidationError{Field: ref, Code: "INVALID_OPTION_DEF", Message: "option value and label must be non-empty"})
			continue
		}
		if seenValues[opt.Value] {
			res.addFieldError(ValidationError{Field: ref, Code: "DUPLICATE_OPTION", Message: fmt.Sprintf("duplicate option value %q", opt.Value), Value: opt.Value})
		}
		seenValues[opt.Value] = true
	}
}

// ValidateSubmission checks a payload against a definition.
// Per field: required/empty first, then type, then rules; a failed check
// short-circuits the later checks for that field only. Keys not present in
// the definition are rejected as UNEXPECTED_FIELD — the schema is a closed
// contract.
func (v *Validator) ValidateSubmission(fields []FormField, payload map[string]interface{}) *Result {
	res := newResult()

	defRes := v.ValidateDefinition(fields)
	if !defRes.IsValid {
		for _, e := range defRes.Errors {
			res.addGlobalError(ValidationError{Code: "INVALID_DEFINITION", Message: e.Message, Field: ""})
		}
		return res
	}

	if payload == nil {
		res.addGlobalError(ValidationError{Code: "INVALID_PAYLOAD", Message: "submission payload must be an object"})
		return res
	}

	known := map[string]bool{}
	for _, f := range fields {
		known[f.Name] = true
		value, present := payload[f.Name]

		if !present || isEmpty(value) {
			if f.Required {
				res.addFieldError(ValidationError{Field: f.Name, Code: "REQUIRED_FIELD_MISSING", Message: fmt.Sprintf("%s is required", f.Label)})
			}
			continue
		}

		if !v.checkType(res, f, value) {
			continue
		}

		v.checkRules(res, f, value)
	}

	for key, value := range payload {
		if !known[key] {
			res.addFieldError(ValidationError{Field: key, Code: "UNEXPECTED_FIELD", Message: fmt.Sprintf("field %q is not part of the form definition", key), Value: value})
		}
	}

	return res
}

// checkType reports false when the value fails the field's type check so
// rule checks never run against a type-invalid value.
func (v *Validator) checkType(res *Result, f FormField, value interface{}) bool {
	switch f.Type {
	case FieldNumber:
		if _, ok := toNumber(value); !ok {
			res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_NUMBER", Message: fmt.Sprintf("%s must be a number", f.Label), Value: value})
			return false
		}
	case FieldDate:
		if !isValidDate(value) {
			res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_DATE", Message: fmt.Sprintf("%s must be a valid date", f.Label), Value: value})
			return false
		}
	case FieldCheckbox:
		if _, ok := value.(bool); !ok {
			res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_BOOLEAN", Message: fmt.Sprintf("%s must be a boolean", f.Label), Value: value})
			return false
		}
	case FieldSelect:
		s := stringify(value)
		for _, opt := range f.Options {
			if opt.Value == s {
				return true
			}
		}
		res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_OPTION", Message: fmt.Sprintf("%s must be one of the declared options", f.Label), Value: value})
		return false
	case FieldText, FieldTextarea:
		if _, ok := value.(string); !ok {
			res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_TEXT", Message: fmt.Sprintf("%s must be a string", f.Label), Value: value})
			return false
		}
	}
	return true
}

// checkRules evaluates every rule independently and reports all failures
func (v *Validator) checkRules(res *Result, f FormField, value interface{}) {
	for _, rule := range f.ValidationRules {
		switch rule.Type {
		case RuleMin, RuleMax:
			v.checkBound(res, f, rule, value)
		case RulePattern:
			src, _ := rule.Value.(string)
			re, err := regexp.Compile(src)
			if err != nil {
				// A broken pattern is a configuration problem, not a
				// submission problem.
				res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_PATTERN", Message: fmt.Sprintf("validation pattern for %s does not compile", f.Label), Value: src})
				continue
			}
			if !re.MatchString(stringify(value)) {
				res.addFieldError(ValidationError{Field: f.Name, Code: "PATTERN_MISMATCH", Message: rule.Message, Value: value})
			}
		case RuleCustom:
			// Declared extension point only; nothing executes in-core.
		}
	}
}

func (v *Validator) checkBound(res *Result, f FormField, rule ValidationRule, value interface{}) {
	bound, ok := toNumber(rule.Value)
	if !ok {
		res.addFieldError(ValidationError{Field: f.Name, Code: "INVALID_RULE_VALUE", Message: fmt.Sprintf("%s rule for %s has a non-numeric bound", rule.Type, f.Label), Value: rule.Value})
		return
	}

	// Numeric fields compare the value itself, everything else compares
	// string length.
	var actual float64
	if n, isNum := toNumber(value); isNum && f.Type == FieldNumber {
		actual = n
	} else {
		actual = float64(len(stringify(value)))
	}

	code := "MIN_VIOLATION"
	failed := actual < bound
	if rule.Type == RuleMax {
		code = "MAX_VIOLATION"
		failed = actual > bound
	}
	if failed {
		res.addFieldError(ValidationError{Field: f.Name, Code: code, Message: rule.Message, Value: value})
	}
}

// Sanitize normalizes a payload before validation: strings are trimmed,
// NaN becomes nil, booleans/numbers/nil pass through unchanged.
func (v *Validator) Sanitize(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		switch typed := value.(type) {
		case string:
			out[key] = strings.TrimSpace(typed)
		case float64:
			if math.IsNaN(typed) {
				out[key] = nil
			} else {
				out[key] = typed
			}
		default:
			out[key] = value
		}
	}
	return out
}

// Enforce is the single entry point used by transition and report paths:
// sanitize, validate, and either return the sanitized payload for
// persistence or fail with the full structured result.
func (v *Validator) Enforce(fields []FormField, payload map[string]interface{}) (map[string]interface{}, error) {
	sanitized := v.Sanitize(payload)
	res := v.ValidateSubmission(fields, sanitized)
	if !res.IsValid {
		return nil, &ValidationFailedError{Result: res}
	}
	return sanitized, nil
}

// isEmpty mirrors the "absent" definition used by the required check:
// nil, empty string, or empty array.
func isEmpty(value interface{}) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case []interface{}:
		return len(typed) == 0
	}
	return false
}

func toNumber(value interface{}) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		if math.IsNaN(typed) {
			return 0, false
		}
		return typed, true
	case int:
		return float64(typed), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func isValidDate(value interface{}) bool {
	switch typed := value.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, typed); err == nil {
				return true
			}
		}
	}
	return false
}

func stringify(value interface{}) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	}
	return fmt.Sprintf("%v", value)
}
