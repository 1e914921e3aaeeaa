package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/workflow"
)

// TaskRepository persists onboarding tasks and their child rows
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a TaskRepository
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create persists a new task
func (r *TaskRepository) Create(ctx context.Context, task *models.OnboardingTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.NewConflict("task number %q already exists", task.TaskNo)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// FindByID loads a task with all relations
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.OnboardingTask, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate loads a task with all relations and locks the task row
// until the surrounding transaction ends.
func (r *TaskRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.OnboardingTask, error) {
	return r.findByID(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *TaskRepository) findByID(db *gorm.DB, id string) (*models.OnboardingTask, error) {
	var task models.OnboardingTask
	err := db.
		Preload("Client").
		Preload("Product").
		Preload("AssignedUser").
		Preload("Procurements").
		Preload("Procurements.Hardware").
		Preload("Devices").
		Preload("Devices.Hardware").
		Preload("Reports").
		First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("task", id)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// List returns tasks, newest first, optionally filtered by status and client
func (r *TaskRepository) List(ctx context.Context, status models.TaskStatus, clientID string) ([]models.OnboardingTask, error) {
	q := r.db.WithContext(ctx).Preload("Client").Preload("Product").Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if clientID != "" {
		q = q.Where("client_id = ?", clientID)
	}
	var tasks []models.OnboardingTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Save persists status, scheduledDate and assignment changes. Child rows
// are owned by the replace/delete methods and never ride along: without the
// Omit, gorm's association write-back would re-insert rows hard-deleted
// earlier in the same transaction.
func (r *TaskRepository) Save(ctx context.Context, task *models.OnboardingTask) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(task).Error; err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// InTransaction runs fn against a transactional copy of the repository.
// The engine relies on this for compensation deletes and the status write
// landing as one unit.
func (r *TaskRepository) InTransaction(ctx context.Context, fn func(tx workflow.TaskStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

// ReplaceProcurements deletes a task's procurement rows and writes the new
// list in their place.
func (r *TaskRepository) ReplaceProcurements(ctx context.Context, taskID string, items []models.HardwareProcurementItem) error {
	if err := r.DeleteProcurements(ctx, taskID); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create procurement items: %w", err)
	}
	return nil
}

// DeleteProcurements removes all procurement rows of a task
func (r *TaskRepository) DeleteProcurements(ctx context.Context, taskID string) error {
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.HardwareProcurementItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete procurement items: %w", err)
	}
	return nil
}

// ReplaceDevices deletes a task's device rows and writes the new list in
// their place. A serial held by another task surfaces as a Conflict.
func (r *TaskRepository) ReplaceDevices(ctx context.Context, taskID string, devices []models.DeviceProvisioning) error {
	if err := r.DeleteDevices(ctx, taskID); err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&devices).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.NewConflict("a device serial in the list is already provisioned")
		}
		return fmt.Errorf("failed to create device rows: %w", err)
	}
	return nil
}

// DeleteDevices removes all device rows of a task
func (r *TaskRepository) DeleteDevices(ctx context.Context, taskID string) error {
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.DeviceProvisioning{}).Error; err != nil {
		return fmt.Errorf("failed to delete device rows: %w", err)
	}
	return nil
}

// ResetDeviceQRCodes sets every device of a task back to the PENDING
// placeholder.
func (r *TaskRepository) ResetDeviceQRCodes(ctx context.Context, taskID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.DeviceProvisioning{}).
		Where("task_id = ?", taskID).
		Update("qr_code", models.QRCodePending).Error
	if err != nil {
		return fmt.Errorf("failed to reset device QR codes: %w", err)
	}
	return nil
}

// SetDeviceQRCode stores the rendered QR payload on one device row
func (r *TaskRepository) SetDeviceQRCode(ctx context.Context, deviceID, qrPayload string) error {
	err := r.db.WithContext(ctx).
		Model(&models.DeviceProvisioning{}).
		Where("id = ?", deviceID).
		Update("qr_code", qrPayload).Error
	if err != nil {
		return fmt.Errorf("failed to store device QR code: %w", err)
	}
	return nil
}

// CreateReport persists a technical report
func (r *TaskRepository) CreateReport(ctx context.Context, report *models.TechnicalReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create technical report: %w", err)
	}
	return nil
}

// CountReports counts the technical reports of a task
func (r *TaskRepository) CountReports(ctx context.Context, taskID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TechnicalReport{}).
		Where("task_id = ?", taskID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count technical reports: %w", err)
	}
	return count, nil
}
