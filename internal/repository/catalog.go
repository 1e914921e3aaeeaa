package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
)

// ProductRepository resolves products
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a ProductRepository
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID loads a product by id
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &product, nil
}

// HardwareRepository resolves catalog hardware types
type HardwareRepository struct {
	db *gorm.DB
}

// NewHardwareRepository creates a HardwareRepository
func NewHardwareRepository(db *gorm.DB) *HardwareRepository {
	return &HardwareRepository{db: db}
}

// FindByID loads a hardware type by id
func (r *HardwareRepository) FindByID(ctx context.Context, id string) (*models.Hardware, error) {
	var hw models.Hardware
	if err := r.db.WithContext(ctx).First(&hw, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("hardware", id)
		}
		return nil, fmt.Errorf("failed to load hardware: %w", err)
	}
	return &hw, nil
}

// UpsertByCode creates or updates a hardware row by its ERP natural key
func (r *HardwareRepository) UpsertByCode(ctx context.Context, hw *models.Hardware) error {
	var existing models.Hardware
	err := r.db.WithContext(ctx).Where("code = ?", hw.Code).First(&existing).Error
	if err == nil {
		existing.Name = hw.Name
		existing.Description = hw.Description
		existing.UnitPrice = hw.UnitPrice
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to update hardware %s: %w", hw.Code, err)
		}
		*hw = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up hardware %s: %w", hw.Code, err)
	}

	if err := r.db.WithContext(ctx).Create(hw).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.NewConflict("hardware code %q already exists", hw.Code)
		}
		return fmt.Errorf("failed to create hardware %s: %w", hw.Code, err)
	}
	return nil
}

// UserRepository resolves users
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads a user by id
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserAuth, error) {
	var user models.UserAuth
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("user", id)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
