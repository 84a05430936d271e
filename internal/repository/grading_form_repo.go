package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// GradingFormRepository stores grading strategy form definitions. It satisfies
// grading.FormStore.
type GradingFormRepository interface {
	GetForm(ctx context.Context, workshopID uint, strategy string) (json.RawMessage, error)
	SaveForm(ctx context.Context, workshopID uint, strategy string, definition json.RawMessage) error
	DeleteForms(ctx context.Context, workshopID uint, strategy string) error
}

type gradingFormRepository struct {
	db *gorm.DB
}

// NewGradingFormRepository instantiates the repository.
func NewGradingFormRepository(db *gorm.DB) GradingFormRepository {
	return &gradingFormRepository{db: db}
}

func (r *gradingFormRepository) GetForm(ctx context.Context, workshopID uint, strategy string) (json.RawMessage, error) {
	var form models.GradingForm
	err := r.db.WithContext(ctx).
		Where("workshop_id = ? AND strategy = ?", workshopID, strategy).
		First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, grading.ErrFormNotDefined
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(form.Definition), nil
}

func (r *gradingFormRepository) SaveForm(ctx context.Context, workshopID uint, strategy string, definition json.RawMessage) error {
	form := models.GradingForm{
		WorkshopID: workshopID,
		Strategy:   strategy,
		Definition: datatypes.JSON(definition),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workshop_id"}, {Name: "strategy"}},
		DoUpdates: clause.AssignmentColumns([]string{"definition", "updated_at"}),
	}).Create(&form).Error
}

func (r *gradingFormRepository) DeleteForms(ctx context.Context, workshopID uint, strategy string) error {
	return r.db.WithContext(ctx).
		Where("workshop_id = ? AND strategy = ?", workshopID, strategy).
		Delete(&models.GradingForm{}).Error
}
