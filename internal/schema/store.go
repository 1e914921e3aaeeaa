package schema

import (
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
)

// Store owns the per-product SOP step list and report form definition.
// Both are validated structurally before any write and versioned on every
// update. Snapshot methods hand out deep copies so in-flight tasks and
// submitted reports are never affected by later template edits.
type Store struct {
	db        *gorm.DB
	validator *Validator
}

// NewStore creates a definition store
func NewStore(db *gorm.DB, validator *Validator) *Store {
	return &Store{db: db, validator: validator}
}

func (s *Store) loadProduct(productID string) (*models.Product, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &product, nil
}

// ReportSchema returns the live report form definition for a product
func (s *Store) ReportSchema(productID string) ([]FormField, int, error) {
	product, err := s.loadProduct(productID)
	if err != nil {
		return nil, 0, err
	}
	fields, err := DecodeDefinition(product.ReportSchema)
	if err != nil {
		return nil, 0, err
	}
	return fields, product.ReportVersion, nil
}

// SOPDefinition returns the live SOP step list for a product
func (s *Store) SOPDefinition(productID string) ([]FormField, int, error) {
	product, err := s.loadProduct(productID)
	if err != nil {
		return nil, 0, err
	}
	fields, err := DecodeDefinition(product.SOPDefinition)
	if err != nil {
		return nil, 0, err
	}
	return fields, product.SOPVersion, nil
}

// nextDefinition validates a new definition and prepares it for
// persistence: the encoded JSON plus the bumped version. An invalid
// definition fails with the full structured result and leaves the stored
// version untouched.
func (s *Store) nextDefinition(fields []FormField, version int) (datatypes.JSON, int, error) {
	if res := s.validator.ValidateDefinition(fields); !res.IsValid {
		return nil, 0, &ValidationFailedError{Result: res}
	}
	raw, err := EncodeDefinition(fields)
	if err != nil {
		return nil, 0, err
	}
	return raw, version + 1, nil
}

// UpdateReportSchema validates and stores a new report form definition,
// bumping the version. Existing reports keep their frozen snapshots.
func (s *Store) UpdateReportSchema(productID string, fields []FormField) (int, error) {
	product, err := s.loadProduct(productID)
	if err != nil {
		return 0, err
	}

	raw, version, err := s.nextDefinition(fields, product.ReportVersion)
	if err != nil {
		return 0, err
	}

	product.ReportSchema = raw
	product.ReportVersion = version
	if err := s.db.Save(product).Error; err != nil {
		return 0, fmt.Errorf("failed to store report schema: %w", err)
	}
	return version, nil
}

// UpdateSOPDefinition validates and stores a new SOP step list,
// bumping the version. Existing task snapshots are untouched.
func (s *Store) UpdateSOPDefinition(productID string, fields []FormField) (int, error) {
	product, err := s.loadProduct(productID)
	if err != nil {
		return 0, err
	}

	raw, version, err := s.nextDefinition(fields, product.SOPVersion)
	if err != nil {
		return 0, err
	}

	product.SOPDefinition = raw
	product.SOPVersion = version
	if err := s.db.Save(product).Error; err != nil {
		return 0, fmt.Errorf("failed to store SOP definition: %w", err)
	}
	return version, nil
}

// SnapshotSOP returns a deep copy of the product's SOP step list, taken at
// task-creation time.
func (s *Store) SnapshotSOP(productID string) ([]FormField, int, error) {
	fields, version, err := s.SOPDefinition(productID)
	if err != nil {
		return nil, 0, err
	}
	return CopyFields(fields), version, nil
}

// SnapshotReportSchema returns a deep copy of the product's report form
// definition, frozen onto each submitted report.
func (s *Store) SnapshotReportSchema(productID string) ([]FormField, int, error) {
	fields, version, err := s.ReportSchema(productID)
	if err != nil {
		return nil, 0, err
	}
	return CopyFields(fields), version, nil
}

// CopyFields deep-copies a definition, including options and rules
func CopyFields(fields []FormField) []FormField {
	if fields == nil {
		return nil
	}
	out := make([]FormField, len(fields))
	for i, f := range fields {
		copied := f
		if f.Options != nil {
			copied.Options = make([]FieldOption, len(f.Options))
			copy(copied.Options, f.Options)
		}
		if f.ValidationRules != nil {
			copied.ValidationRules = make([]ValidationRule, len(f.ValidationRules))
			copy(copied.ValidationRules, f.ValidationRules)
		}
		out[i] = copied
	}
	return out
}
