// Package repository provides the GORM-backed implementations of the
// workflow engine's persistence collaborators. Not-found lookups surface
// apperrors.NotFoundError and unique-constraint violations surface
// apperrors.ConflictError (via gorm's translated ErrDuplicatedKey), so the
// engine never inspects driver errors itself.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
)

// ClientRepository resolves and creates clients
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a ClientRepository
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// FindByID loads a client by id
func (r *ClientRepository) FindByID(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).First(&client, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("client", id)
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return &client, nil
}

// UpsertByName finds a client by its unique name, reactivating a
// soft-deleted or deactivated match, or creates a new row.
func (r *ClientRepository) UpsertByName(ctx context.Context, input *models.Client) (*models.Client, error) {
	var existing models.Client
	err := r.db.WithContext(ctx).Unscoped().Where("name = ?", input.Name).First(&existing).Error
	if err == nil {
		if existing.DeletedAt.Valid || !existing.IsActive {
			existing.DeletedAt = gorm.DeletedAt{}
			existing.IsActive = true
			existing.Address = input.Address
			existing.Email = input.Email
			existing.Phone = input.Phone
			existing.ContactPerson = input.ContactPerson
			if err := r.db.WithContext(ctx).Unscoped().Save(&existing).Error; err != nil {
				return nil, fmt.Errorf("failed to reactivate client: %w", err)
			}
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up client by name: %w", err)
	}

	input.IsActive = true
	if err := r.db.WithContext(ctx).Create(input).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent creator won the race on the unique name.
			return nil, apperrors.NewConflict("client %q already exists", input.Name)
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return input, nil
}
