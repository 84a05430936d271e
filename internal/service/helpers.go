package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

func loadWorkshop(ctx context.Context, repo repository.WorkshopRepository, id uint) (models.Workshop, error) {
	workshop, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Workshop{}, ErrWorkshopNotFound
		}
		return models.Workshop{}, err
	}
	return workshop, nil
}

func loadSubmission(ctx context.Context, repo repository.SubmissionRepository, id uint) (models.Submission, error) {
	submission, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func loadAssessment(ctx context.Context, repo repository.AssessmentRepository, id uint) (models.Assessment, error) {
	assessment, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

func phaseDenied(operation string, phase models.Phase) error {
	return fmt.Errorf("%w: %s in %s phase", ErrPhaseForbidden, operation, phase)
}

// ensureExamplesAssessed requires a graded training assessment of every example.
func ensureExamplesAssessed(ctx context.Context, submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, workshopID, userID uint) error {
	example := true
	examples, err := submissions.List(ctx, repository.SubmissionFilter{WorkshopID: workshopID, Example: &example})
	if err != nil {
		return err
	}
	for _, item := range examples {
		assessment, err := assessments.GetByPair(ctx, item.ID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExamplesNotAssessed
		}
		if err != nil {
			return err
		}
		if !assessment.IsGraded() {
			return ErrExamplesNotAssessed
		}
	}
	return nil
}
