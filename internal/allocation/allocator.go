// Package allocation creates and removes the assessments that pair reviewers with
// submissions.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
	"github.com/noah-isme/gema-workshop-api/internal/registry"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// Allocator keys.
const (
	ManualName    = "manual"
	RandomName    = "random"
	ScheduledName = "scheduled"
)

var (
	// ErrAllocationExists is returned when the reviewer already has an assessment of the
	// submission. It is an expected condition; AddAllocation returns the existing id with it.
	ErrAllocationExists = errors.New("allocation already exists")
	// ErrSelfAssessmentNotAllowed indicates the author was paired with their own submission
	// while the workshop disables self-assessment.
	ErrSelfAssessmentNotAllowed = errors.New("self-assessment not allowed")
	// ErrReferenceExists indicates the example already has its reference assessment.
	ErrReferenceExists = errors.New("example already has a reference assessment")
	// ErrAssessmentGraded indicates an attempt to remove a graded allocation without force.
	ErrAssessmentGraded = errors.New("assessment already graded")
	// ErrSubmissionMismatch indicates a submission from another workshop.
	ErrSubmissionMismatch = errors.New("submission does not belong to workshop")
	// ErrInvalidWeight indicates a negative assessment weight.
	ErrInvalidWeight = errors.New("assessment weight must not be negative")
	// ErrInvalidSettings wraps settings decoding failures.
	ErrInvalidSettings = errors.New("invalid allocator settings")
)

// Allocator is the shared contract of the allocation plugins.
type Allocator interface {
	Name() string
	// Init validates settings and prepares a result without pairing anyone.
	Init(ctx context.Context, workshop models.Workshop, settings json.RawMessage) (*Result, error)
	// Execute performs the pairing and records its outcome in result.
	Execute(ctx context.Context, workshop models.Workshop, settings json.RawMessage, result *Result) error
	// DeleteInstance removes allocator-owned state of the workshop.
	DeleteInstance(ctx context.Context, workshopID uint) error
}

// Registry maps allocator keys to constructors.
type Registry = registry.Registry[Allocator]

// NewRegistry returns an empty allocator registry.
func NewRegistry() *Registry {
	return registry.New[Allocator]()
}

// Store groups the repositories the allocators work on.
type Store struct {
	Workshops    repository.WorkshopRepository
	Submissions  repository.SubmissionRepository
	Assessments  repository.AssessmentRepository
	Participants repository.ParticipantRepository
	Scheduled    repository.ScheduledAllocationRepository
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func decodeSettings(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return validate.Struct(target)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return validate.Struct(target)
}

// AddAllocation creates the assessment pairing reviewerID with the submission. When the
// pair exists, the existing assessment id is returned together with ErrAllocationExists.
func AddAllocation(ctx context.Context, store Store, workshop models.Workshop, submission models.Submission, reviewerID uint, weight int) (uint, error) {
	if submission.WorkshopID != workshop.ID {
		return 0, ErrSubmissionMismatch
	}
	if weight < 0 {
		return 0, ErrInvalidWeight
	}

	existing, err := store.Assessments.GetByPair(ctx, submission.ID, reviewerID)
	switch {
	case err == nil:
		return existing.ID, ErrAllocationExists
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, err
	}

	if !submission.Example && submission.AuthorID == reviewerID && !workshop.UseSelfAssessment {
		return 0, ErrSelfAssessmentNotAllowed
	}

	if submission.Example && weight == models.WeightReference {
		_, err := store.Assessments.GetReference(ctx, submission.ID)
		if err == nil {
			return 0, ErrReferenceExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	assessment := models.Assessment{
		SubmissionID: submission.ID,
		ReviewerID:   reviewerID,
		Weight:       weight,
	}
	if err := store.Assessments.Create(ctx, &assessment); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, err
		}
		// another request created the pair since the lookup above
		existing, lookupErr := store.Assessments.GetByPair(ctx, submission.ID, reviewerID)
		if lookupErr != nil {
			return 0, ErrAllocationExists
		}
		return existing.ID, ErrAllocationExists
	}
	return assessment.ID, nil
}

// RemoveAllocation deletes an assessment. Graded assessments are kept unless force is set.
func RemoveAllocation(ctx context.Context, store Store, workshop models.Workshop, assessmentID uint, force bool) error {
	assessment, err := store.Assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return err
	}
	submission, err := store.Submissions.GetByID(ctx, assessment.SubmissionID)
	if err != nil {
		return err
	}
	if submission.WorkshopID != workshop.ID {
		return ErrSubmissionMismatch
	}
	if assessment.IsGraded() && !force {
		return ErrAssessmentGraded
	}
	return store.Assessments.Delete(ctx, assessmentID)
}

func recordRun(name string, result *Result) {
	observability.Allocations().WithLabelValues(name, result.Status.String()).Inc()
}

func componentLogger(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", "allocator").Str("allocator", name).Logger()
}

func utcNow() time.Time {
	return time.Now().UTC()
}
