package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// AssessmentFilter narrows assessment listings within a workshop.
type AssessmentFilter struct {
	WorkshopID   uint
	ReviewerID   *uint
	SubmissionID *uint
	Example      *bool
}

// GradingGradeRow is one assessment made by a reviewer, joined with the reviewer's stored
// aggregation record when one exists. Rows of one reviewer are adjacent.
type GradingGradeRow struct {
	WorkshopID       uint
	ReviewerID       uint
	GradingGrade     *float64
	GradingGradeOver *float64
	AggregationID    *uint
	AggregatedGrade  *float64
}

// AssessmentRepository defines data operations for assessments.
type AssessmentRepository interface {
	List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, error)
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	GetByPair(ctx context.Context, submissionID, reviewerID uint) (models.Assessment, error)
	GetReference(ctx context.Context, submissionID uint) (models.Assessment, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	Update(ctx context.Context, assessment *models.Assessment) error
	Delete(ctx context.Context, id uint) error
	DeleteByIDs(ctx context.Context, ids []uint) error
	UpdateGradingGrade(ctx context.Context, id uint, value *float64) error
	UpdateWeight(ctx context.Context, id uint, weight int) error
	ClearGradingGrades(ctx context.Context, workshopID uint) (int64, error)
	GradingGradeRows(ctx context.Context, workshopID uint, reviewerIDs []uint) ([]GradingGradeRow, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates the repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, error) {
	query := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Joins("JOIN workshop_submissions ON workshop_submissions.id = workshop_assessments.submission_id").
		Where("workshop_submissions.workshop_id = ?", filter.WorkshopID)

	if filter.ReviewerID != nil {
		query = query.Where("workshop_assessments.reviewer_id = ?", *filter.ReviewerID)
	}

	if filter.SubmissionID != nil {
		query = query.Where("workshop_assessments.submission_id = ?", *filter.SubmissionID)
	}

	if filter.Example != nil {
		query = query.Where("workshop_submissions.example = ?", *filter.Example)
	}

	var assessments []models.Assessment
	if err := query.Order("workshop_assessments.id").Find(&assessments).Error; err != nil {
		return nil, err
	}
	return assessments, nil
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (r *assessmentRepository) GetByPair(ctx context.Context, submissionID, reviewerID uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).
		Where("submission_id = ? AND reviewer_id = ?", submissionID, reviewerID).
		First(&assessment).Error; err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (r *assessmentRepository) GetReference(ctx context.Context, submissionID uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).
		Where("submission_id = ? AND weight = ?", submissionID, models.WeightReference).
		First(&assessment).Error; err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) Update(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Save(assessment).Error
}

func (r *assessmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Assessment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assessmentRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Assessment{}).Error
}

func (r *assessmentRepository) UpdateGradingGrade(ctx context.Context, id uint, value *float64) error {
	return r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("id = ?", id).
		Update("grading_grade", nullable(value)).Error
}

func (r *assessmentRepository) UpdateWeight(ctx context.Context, id uint, weight int) error {
	return r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("id = ?", id).
		Update("weight", weight).Error
}

func (r *assessmentRepository) ClearGradingGrades(ctx context.Context, workshopID uint) (int64, error) {
	realSubmissions := r.db.WithContext(ctx).Model(&models.Submission{}).Select("id").
		Where("workshop_id = ? AND example = ?", workshopID, false)

	result := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("submission_id IN (?)", realSubmissions).
		Where("grading_grade IS NOT NULL").
		Update("grading_grade", nil)
	return result.RowsAffected, result.Error
}

func (r *assessmentRepository) GradingGradeRows(ctx context.Context, workshopID uint, reviewerIDs []uint) ([]GradingGradeRow, error) {
	query := r.db.WithContext(ctx).
		Table("workshop_assessments AS a").
		Select("s.workshop_id AS workshop_id, a.reviewer_id AS reviewer_id, a.grading_grade AS grading_grade, " +
			"a.grading_grade_over AS grading_grade_over, ag.id AS aggregation_id, ag.grading_grade AS aggregated_grade").
		Joins("JOIN workshop_submissions AS s ON s.id = a.submission_id").
		Joins("LEFT JOIN workshop_aggregations AS ag ON ag.user_id = a.reviewer_id AND ag.workshop_id = s.workshop_id").
		Where("s.workshop_id = ?", workshopID)

	if len(reviewerIDs) > 0 {
		query = query.Where("a.reviewer_id IN ?", reviewerIDs)
	}

	var rows []GradingGradeRow
	if err := query.Order("a.reviewer_id, a.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func nullable(value *float64) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
