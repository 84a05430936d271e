package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// ManualPair asks for one reviewer to be paired with one submission.
type ManualPair struct {
	SubmissionID uint `json:"submission_id" validate:"required"`
	ReviewerID   uint `json:"reviewer_id" validate:"required"`
	Weight       *int `json:"weight,omitempty" validate:"omitempty,gte=0,lte=16"`
}

// ManualRemoval asks for one allocation to be removed.
type ManualRemoval struct {
	AssessmentID uint `json:"assessment_id" validate:"required"`
	Force        bool `json:"force"`
}

// ManualSettings is the batch of pairings a teacher requested.
type ManualSettings struct {
	Add    []ManualPair    `json:"add" validate:"dive"`
	Remove []ManualRemoval `json:"remove" validate:"dive"`
}

// Manual applies teacher-chosen pairings.
type Manual struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewManual constructs the manual allocator.
func NewManual(store Store, logger zerolog.Logger) *Manual {
	return &Manual{store: store, logger: componentLogger(logger, ManualName), now: utcNow}
}

func (m *Manual) Name() string { return ManualName }

func (m *Manual) Init(_ context.Context, _ models.Workshop, raw json.RawMessage) (*Result, error) {
	var settings ManualSettings
	if err := decodeSettings(raw, &settings); err != nil {
		return nil, err
	}
	result := NewResult(m.now())
	result.Message = fmt.Sprintf("%d pairings to add, %d to remove", len(settings.Add), len(settings.Remove))
	return result, nil
}

func (m *Manual) Execute(ctx context.Context, workshop models.Workshop, raw json.RawMessage, result *Result) error {
	var settings ManualSettings
	if err := decodeSettings(raw, &settings); err != nil {
		result.Logf(LogError, 0, "invalid settings: %v", err)
		result.Finish(StatusFailed, "invalid manual allocation settings", m.now())
		recordRun(ManualName, result)
		return err
	}

	var added, removed, failed int
	for _, pair := range settings.Add {
		weight := models.WeightDefault
		if pair.Weight != nil {
			weight = *pair.Weight
		}
		id, err := m.AddAllocation(ctx, workshop, pair.SubmissionID, pair.ReviewerID, weight)
		switch {
		case errors.Is(err, ErrAllocationExists):
			result.Logf(LogInfo, 1, "reviewer %d already allocated to submission %d (assessment %d)", pair.ReviewerID, pair.SubmissionID, id)
		case err != nil:
			failed++
			result.Logf(LogError, 1, "reviewer %d to submission %d: %v", pair.ReviewerID, pair.SubmissionID, err)
		default:
			added++
			result.Logf(LogOK, 1, "reviewer %d allocated to submission %d", pair.ReviewerID, pair.SubmissionID)
		}
	}

	for _, removal := range settings.Remove {
		if err := m.RemoveAllocation(ctx, workshop, removal.AssessmentID, removal.Force); err != nil {
			failed++
			result.Logf(LogError, 1, "remove assessment %d: %v", removal.AssessmentID, err)
			continue
		}
		removed++
		result.Logf(LogOK, 1, "assessment %d removed", removal.AssessmentID)
	}

	status := StatusExecuted
	if failed > 0 && added == 0 && removed == 0 {
		status = StatusFailed
	}
	result.Finish(status, fmt.Sprintf("%d added, %d removed, %d failed", added, removed, failed), m.now())
	recordRun(ManualName, result)

	m.logger.Info().
		Uint("workshop_id", workshop.ID).
		Int("added", added).
		Int("removed", removed).
		Int("failed", failed).
		Msg("manual allocation executed")
	return nil
}

// AddAllocation pairs reviewerID with the submission.
func (m *Manual) AddAllocation(ctx context.Context, workshop models.Workshop, submissionID, reviewerID uint, weight int) (uint, error) {
	submission, err := m.store.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	return AddAllocation(ctx, m.store, workshop, submission, reviewerID, weight)
}

// RemoveAllocation deletes one allocation of the workshop.
func (m *Manual) RemoveAllocation(ctx context.Context, workshop models.Workshop, assessmentID uint, force bool) error {
	return RemoveAllocation(ctx, m.store, workshop, assessmentID, force)
}

func (m *Manual) DeleteInstance(context.Context, uint) error { return nil }
