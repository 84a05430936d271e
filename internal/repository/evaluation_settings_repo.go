package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// BestSettingsRepository stores the "best" evaluator configuration per workshop.
type BestSettingsRepository interface {
	Get(ctx context.Context, workshopID uint) (models.BestEvaluationSettings, error)
	Save(ctx context.Context, settings *models.BestEvaluationSettings) error
	DeleteByWorkshop(ctx context.Context, workshopID uint) error
}

type bestSettingsRepository struct {
	db *gorm.DB
}

// NewBestSettingsRepository instantiates the repository.
func NewBestSettingsRepository(db *gorm.DB) BestSettingsRepository {
	return &bestSettingsRepository{db: db}
}

func (r *bestSettingsRepository) Get(ctx context.Context, workshopID uint) (models.BestEvaluationSettings, error) {
	var settings models.BestEvaluationSettings
	if err := r.db.WithContext(ctx).Where("workshop_id = ?", workshopID).First(&settings).Error; err != nil {
		return models.BestEvaluationSettings{}, err
	}
	return settings, nil
}

func (r *bestSettingsRepository) Save(ctx context.Context, settings *models.BestEvaluationSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workshop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"comparison_level"}),
	}).Create(settings).Error
}

func (r *bestSettingsRepository) DeleteByWorkshop(ctx context.Context, workshopID uint) error {
	return r.db.WithContext(ctx).Where("workshop_id = ?", workshopID).Delete(&models.BestEvaluationSettings{}).Error
}
