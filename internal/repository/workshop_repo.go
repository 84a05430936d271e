package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// ResetScope selects which user data a reset removes.
type ResetScope struct {
	Submissions bool
	Assessments bool
	Phase       bool
}

// WorkshopRepository defines data operations for workshop instances.
type WorkshopRepository interface {
	Create(ctx context.Context, workshop *models.Workshop) error
	GetByID(ctx context.Context, id uint) (models.Workshop, error)
	Update(ctx context.Context, workshop *models.Workshop) error
	// SwapPhase moves the workshop from one phase to another only if it is still in from.
	SwapPhase(ctx context.Context, id uint, from, to models.Phase) (bool, error)
	// SwitchToAssessmentIfDue performs the automatic submission to assessment switch and
	// clears the flag in the same statement.
	SwitchToAssessmentIfDue(ctx context.Context, id uint, now time.Time) (bool, error)
	ListDueForAutoSwitch(ctx context.Context, now time.Time) ([]models.Workshop, error)
	ResetUserData(ctx context.Context, id uint, scope ResetScope) error
	DeleteCascade(ctx context.Context, id uint) error
}

type workshopRepository struct {
	db *gorm.DB
}

// NewWorkshopRepository instantiates the repository.
func NewWorkshopRepository(db *gorm.DB) WorkshopRepository {
	return &workshopRepository{db: db}
}

func (r *workshopRepository) Create(ctx context.Context, workshop *models.Workshop) error {
	return r.db.WithContext(ctx).Create(workshop).Error
}

func (r *workshopRepository) GetByID(ctx context.Context, id uint) (models.Workshop, error) {
	var workshop models.Workshop
	if err := r.db.WithContext(ctx).First(&workshop, id).Error; err != nil {
		return models.Workshop{}, err
	}
	return workshop, nil
}

func (r *workshopRepository) Update(ctx context.Context, workshop *models.Workshop) error {
	return r.db.WithContext(ctx).Save(workshop).Error
}

func (r *workshopRepository) SwapPhase(ctx context.Context, id uint, from, to models.Phase) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Workshop{}).
		Where("id = ? AND phase = ?", id, from).
		Updates(map[string]interface{}{"phase": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *workshopRepository) SwitchToAssessmentIfDue(ctx context.Context, id uint, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Workshop{}).
		Where("id = ? AND phase = ? AND phase_switch_assessment = ?", id, models.PhaseSubmission, true).
		Where("submission_end IS NOT NULL AND submission_end < ?", now).
		Updates(map[string]interface{}{
			"phase":                   models.PhaseAssessment,
			"phase_switch_assessment": false,
			"updated_at":              now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *workshopRepository) ListDueForAutoSwitch(ctx context.Context, now time.Time) ([]models.Workshop, error) {
	var workshops []models.Workshop
	err := r.db.WithContext(ctx).
		Where("phase = ? AND phase_switch_assessment = ?", models.PhaseSubmission, true).
		Where("submission_end IS NOT NULL AND submission_end < ?", now).
		Order("id").
		Find(&workshops).Error
	if err != nil {
		return nil, err
	}
	return workshops, nil
}

func (r *workshopRepository) ResetUserData(ctx context.Context, id uint, scope ResetScope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realSubmissions := tx.Model(&models.Submission{}).Select("id").
			Where("workshop_id = ? AND example = ?", id, false)

		if scope.Submissions || scope.Assessments {
			if err := tx.Where("submission_id IN (?)", realSubmissions).
				Delete(&models.Assessment{}).Error; err != nil {
				return err
			}
		}

		if scope.Submissions {
			if err := tx.Where("workshop_id = ? AND example = ?", id, false).
				Delete(&models.Submission{}).Error; err != nil {
				return err
			}
		} else if scope.Assessments {
			if err := tx.Model(&models.Submission{}).
				Where("workshop_id = ? AND example = ?", id, false).
				Updates(map[string]interface{}{"grade": nil, "time_graded": nil}).Error; err != nil {
				return err
			}
		}

		if scope.Submissions || scope.Assessments {
			if err := tx.Where("workshop_id = ?", id).Delete(&models.Aggregation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("workshop_id = ?", id).Delete(&models.GradeItem{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ScheduledAllocation{}).
				Where("workshop_id = ?", id).
				Updates(map[string]interface{}{
					"time_allocated": nil,
					"submission_end": nil,
					"result_status":  0,
					"result_message": "",
					"result_log":     nil,
				}).Error; err != nil {
				return err
			}
		}

		if scope.Phase {
			if err := tx.Model(&models.Workshop{}).Where("id = ?", id).
				Updates(map[string]interface{}{"phase": models.PhaseSetup, "updated_at": time.Now().UTC()}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *workshopRepository) DeleteCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submissions := tx.Model(&models.Submission{}).Select("id").Where("workshop_id = ?", id)
		if err := tx.Where("submission_id IN (?)", submissions).Delete(&models.Assessment{}).Error; err != nil {
			return err
		}

		for _, model := range []interface{}{
			&models.Submission{},
			&models.Aggregation{},
			&models.GradeItem{},
			&models.Participant{},
			&models.ScheduledAllocation{},
			&models.BestEvaluationSettings{},
			&models.GradingForm{},
		} {
			if err := tx.Where("workshop_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}

		result := tx.Delete(&models.Workshop{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
