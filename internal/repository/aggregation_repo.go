package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// AggregationRepository persists per-user aggregated grading grades.
type AggregationRepository interface {
	Create(ctx context.Context, aggregation *models.Aggregation) error
	UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error
	GetByUser(ctx context.Context, workshopID, userID uint) (models.Aggregation, error)
	ListByWorkshop(ctx context.Context, workshopID uint) ([]models.Aggregation, error)
	// ClearGrades nulls every aggregated grading grade of the workshop.
	ClearGrades(ctx context.Context, workshopID uint) error
}

type aggregationRepository struct {
	db *gorm.DB
}

// NewAggregationRepository instantiates the repository.
func NewAggregationRepository(db *gorm.DB) AggregationRepository {
	return &aggregationRepository{db: db}
}

func (r *aggregationRepository) Create(ctx context.Context, aggregation *models.Aggregation) error {
	return r.db.WithContext(ctx).Create(aggregation).Error
}

func (r *aggregationRepository) UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Aggregation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"grading_grade": grade, "time_graded": gradedAt}).Error
}

func (r *aggregationRepository) GetByUser(ctx context.Context, workshopID, userID uint) (models.Aggregation, error) {
	var aggregation models.Aggregation
	if err := r.db.WithContext(ctx).
		Where("workshop_id = ? AND user_id = ?", workshopID, userID).
		First(&aggregation).Error; err != nil {
		return models.Aggregation{}, err
	}
	return aggregation, nil
}

func (r *aggregationRepository) ListByWorkshop(ctx context.Context, workshopID uint) ([]models.Aggregation, error) {
	var aggregations []models.Aggregation
	if err := r.db.WithContext(ctx).
		Where("workshop_id = ?", workshopID).
		Order("user_id").
		Find(&aggregations).Error; err != nil {
		return nil, err
	}
	return aggregations, nil
}

func (r *aggregationRepository) ClearGrades(ctx context.Context, workshopID uint) error {
	return r.db.WithContext(ctx).Model(&models.Aggregation{}).
		Where("workshop_id = ?", workshopID).
		Updates(map[string]interface{}{"grading_grade": nil, "time_graded": nil}).Error
}
