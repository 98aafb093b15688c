package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"PrintStation/app/models"
)

// JobStore reads pending print jobs and writes their terminal status.
// The backend table is the source of truth; this station never creates
// jobs and never moves a terminal job back to pending.
type JobStore interface {
	PendingJobs(ctx context.Context, tenantID string) ([]models.PrintJob, error)
	GetJob(ctx context.Context, id uint) (*models.PrintJob, error)
	MarkPrinted(ctx context.Context, id uint, deviceID string) (bool, error)
	MarkFailed(ctx context.Context, id uint, deviceID, reason string) (bool, error)
	Sectors(ctx context.Context, tenantID string) ([]models.PrintSector, error)
}

// GormJobStore is the JobStore over the backend PostgreSQL database.
type GormJobStore struct {
	db *gorm.DB
}

// NewGormJobStore creates a store over the given connection.
func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

// PendingJobs returns the tenant's pending jobs, oldest first.
func (s *GormJobStore) PendingJobs(ctx context.Context, tenantID string) ([]models.PrintJob, error) {
	var jobs []models.PrintJob
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.PrintJobPending).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}
	return jobs, nil
}

// GetJob returns one job by id.
func (s *GormJobStore) GetJob(ctx context.Context, id uint) (*models.PrintJob, error) {
	var job models.PrintJob
	err := s.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", id, err)
	}
	return &job, nil
}

// MarkPrinted transitions a pending job to printed, recording the
// reporting device. The guarded WHERE makes the transition first-writer
// wins: a second device's attempt affects zero rows and returns false.
func (s *GormJobStore) MarkPrinted(ctx context.Context, id uint, deviceID string) (bool, error) {
	return s.transition(ctx, id, models.PrintJobPrinted, deviceID, "")
}

// MarkFailed transitions a pending job to failed with the error detail.
func (s *GormJobStore) MarkFailed(ctx context.Context, id uint, deviceID, reason string) (bool, error) {
	return s.transition(ctx, id, models.PrintJobFailed, deviceID, reason)
}

func (s *GormJobStore) transition(ctx context.Context, id uint, status models.PrintJobStatus, deviceID, reason string) (bool, error) {
	updates := map[string]interface{}{
		"status":    status,
		"device_id": deviceID,
	}
	if reason != "" {
		updates["error_message"] = reason
	}

	result := s.db.WithContext(ctx).
		Model(&models.PrintJob{}).
		Where("id = ? AND status = ?", id, models.PrintJobPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark job %d %s: %w", id, status, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Sectors returns the tenant's configured kitchen sectors.
func (s *GormJobStore) Sectors(ctx context.Context, tenantID string) ([]models.PrintSector, error) {
	var sectors []models.PrintSector
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Find(&sectors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load print sectors: %w", err)
	}
	return sectors, nil
}
