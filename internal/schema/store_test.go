package schema

import (
	"errors"
	"testing"
)

// Snapshots must be independent of the live definition: mutating the copy
// (or the original) must not leak through.
func TestCopyFieldsIsDeep(t *testing.T) {
	original := []FormField{
		{
			ID: "f1", Name: "location", Label: "Location", Type: FieldSelect, Order: 1,
			Options: []FieldOption{{Value: "indoor", Label: "Indoor"}},
			ValidationRules: []ValidationRule{
				{Type: RulePattern, Value: "^a+$", Message: "only a"},
			},
		},
	}

	snapshot := CopyFields(original)

	original[0].Label = "Changed"
	original[0].Options[0].Value = "outdoor"
	original[0].ValidationRules[0].Message = "changed"

	if snapshot[0].Label != "Location" {
		t.Errorf("label leaked through the copy: %q", snapshot[0].Label)
	}
	if snapshot[0].Options[0].Value != "indoor" {
		t.Errorf("option leaked through the copy: %q", snapshot[0].Options[0].Value)
	}
	if snapshot[0].ValidationRules[0].Message != "only a" {
		t.Errorf("rule leaked through the copy: %q", snapshot[0].ValidationRules[0].Message)
	}
}

func TestCopyFieldsNil(t *testing.T) {
	if got := CopyFields(nil); got != nil {
		t.Errorf("CopyFields(nil) = %v, want nil", got)
	}
}

func TestDefinitionUpdateRejectsInvalid(t *testing.T) {
	s := NewStore(nil, NewValidator())

	_, _, err := s.nextDefinition([]FormField{
		{ID: "a", Name: "step", Type: "slider", Order: 1},
	}, 7)

	var failed *ValidationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	codes := map[string]bool{}
	for _, e := range failed.Result.Errors {
		codes[e.Code] = true
	}
	if !codes["MISSING_LABEL"] || !codes["INVALID_FIELD_TYPE"] {
		t.Errorf("result should carry the structural violations, got %v", codes)
	}
}

func TestDefinitionUpdateBumpsVersion(t *testing.T) {
	s := NewStore(nil, NewValidator())

	fields := []FormField{
		{ID: "a", Name: "checkMount", Label: "Check mount", Type: FieldCheckbox, Order: 1},
	}

	raw, version, err := s.nextDefinition(fields, 7)
	if err != nil {
		t.Fatalf("nextDefinition failed: %v", err)
	}
	if version != 8 {
		t.Errorf("version = %d, want 8", version)
	}

	decoded, err := DecodeDefinition(raw)
	if err != nil {
		t.Fatalf("stored definition does not decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "checkMount" {
		t.Errorf("decoded definition mismatch: %+v", decoded)
	}

	// A second accepted update keeps bumping.
	if _, version, err = s.nextDefinition(fields, version); err != nil || version != 9 {
		t.Errorf("second update: version = %d, err = %v, want 9", version, err)
	}
}
