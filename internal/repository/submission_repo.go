package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	WorkshopID uint
	AuthorID   *uint
	Example    *bool
}

// SubmissionGradeRow is one assessment of a submission, joined with the submission's
// stored grade. Rows of one submission are adjacent.
type SubmissionGradeRow struct {
	SubmissionID    uint
	SubmissionGrade *float64
	Weight          int
	Grade           *float64
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAuthor(ctx context.Context, workshopID, authorID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	// Delete removes the submission and its assessments.
	Delete(ctx context.Context, id uint) error
	CountAssessments(ctx context.Context, id uint) (int64, error)
	UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error
	SubmissionGradeRows(ctx context.Context, workshopID uint, submissionIDs []uint) ([]SubmissionGradeRow, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).Where("workshop_id = ?", filter.WorkshopID)

	if filter.AuthorID != nil {
		query = query.Where("author_id = ?", *filter.AuthorID)
	}

	if filter.Example != nil {
		query = query.Where("example = ?", *filter.Example)
	}

	var submissions []models.Submission
	if err := query.Order("id").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAuthor(ctx context.Context, workshopID, authorID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("workshop_id = ? AND author_id = ? AND example = ?", workshopID, authorID, false).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", id).Delete(&models.Assessment{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Submission{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *submissionRepository) CountAssessments(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Assessment{}).Where("submission_id = ?", id).Count(&count).Error
	return count, err
}

func (r *submissionRepository) UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"grade": grade, "time_graded": gradedAt}).Error
}

func (r *submissionRepository) SubmissionGradeRows(ctx context.Context, workshopID uint, submissionIDs []uint) ([]SubmissionGradeRow, error) {
	query := r.db.WithContext(ctx).
		Table("workshop_submissions AS s").
		Select("s.id AS submission_id, s.grade AS submission_grade, a.weight AS weight, a.grade AS grade").
		Joins("JOIN workshop_assessments AS a ON a.submission_id = s.id").
		Where("s.workshop_id = ?", workshopID)

	if len(submissionIDs) > 0 {
		query = query.Where("s.id IN ?", submissionIDs)
	}

	var rows []SubmissionGradeRow
	if err := query.Order("s.id, a.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
