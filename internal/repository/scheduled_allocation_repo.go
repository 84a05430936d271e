package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// ScheduledAllocationRepository persists deferred allocation settings and outcomes.
type ScheduledAllocationRepository interface {
	Get(ctx context.Context, workshopID uint) (models.ScheduledAllocation, error)
	// Save inserts or updates the single row of the workshop.
	Save(ctx context.Context, record *models.ScheduledAllocation) error
	// ListDue returns ids of workshops with scheduling enabled and a submission deadline
	// before now.
	ListDue(ctx context.Context, now time.Time) ([]uint, error)
	DeleteByWorkshop(ctx context.Context, workshopID uint) error
}

type scheduledAllocationRepository struct {
	db *gorm.DB
}

// NewScheduledAllocationRepository instantiates the repository.
func NewScheduledAllocationRepository(db *gorm.DB) ScheduledAllocationRepository {
	return &scheduledAllocationRepository{db: db}
}

func (r *scheduledAllocationRepository) Get(ctx context.Context, workshopID uint) (models.ScheduledAllocation, error) {
	var record models.ScheduledAllocation
	if err := r.db.WithContext(ctx).Where("workshop_id = ?", workshopID).First(&record).Error; err != nil {
		return models.ScheduledAllocation{}, err
	}
	return record, nil
}

func (r *scheduledAllocationRepository) Save(ctx context.Context, record *models.ScheduledAllocation) error {
	if record.ID == 0 {
		var existing models.ScheduledAllocation
		err := r.db.WithContext(ctx).Select("id").Where("workshop_id = ?", record.WorkshopID).First(&existing).Error
		switch {
		case err == nil:
			record.ID = existing.ID
		case err != gorm.ErrRecordNotFound:
			return err
		default:
			return r.db.WithContext(ctx).Create(record).Error
		}
	}
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *scheduledAllocationRepository) ListDue(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Table("workshop_scheduled_allocations AS sa").
		Joins("JOIN workshops AS w ON w.id = sa.workshop_id").
		Where("sa.enabled = ?", true).
		Where("w.submission_end IS NOT NULL AND w.submission_end < ?", now).
		Order("w.id").
		Pluck("w.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *scheduledAllocationRepository) DeleteByWorkshop(ctx context.Context, workshopID uint) error {
	return r.db.WithContext(ctx).Where("workshop_id = ?", workshopID).Delete(&models.ScheduledAllocation{}).Error
}
