package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// DefaultComparison is the "fair" strictness level.
const DefaultComparison = 5

var comparisonFactors = map[int]float64{
	1: 5.00, // very strict
	3: 3.00,
	5: 2.50,
	7: 1.67,
	9: 1.00, // very lax
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BestSettings configures the best-assessment evaluator.
type BestSettings struct {
	Comparison int `json:"comparison" validate:"oneof=1 3 5 7 9"`
}

// Best grades every reviewer of a submission by how far their grade lies from the
// assessment closest to the weighted mean of all grades of that submission.
type Best struct {
	settings repository.BestSettingsRepository
}

// NewBest constructs the evaluator.
func NewBest(settings repository.BestSettingsRepository) *Best {
	return &Best{settings: settings}
}

func (b *Best) Name() string { return BestName }

// Settings returns the stored comparison level, or the default.
func (b *Best) Settings(ctx context.Context, workshopID uint) (BestSettings, error) {
	stored, err := b.settings.Get(ctx, workshopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BestSettings{Comparison: DefaultComparison}, nil
	}
	if err != nil {
		return BestSettings{}, err
	}
	return BestSettings{Comparison: stored.ComparisonLevel}, nil
}

func (b *Best) Evaluate(ctx context.Context, workshop models.Workshop, assessments []models.Assessment, raw json.RawMessage) ([]Change, error) {
	settings, err := b.resolveSettings(ctx, workshop.ID, raw)
	if err != nil {
		return nil, err
	}
	factor := comparisonFactors[settings.Comparison]

	bySubmission := make(map[uint][]models.Assessment)
	var order []uint
	for _, assessment := range assessments {
		if _, seen := bySubmission[assessment.SubmissionID]; !seen {
			order = append(order, assessment.SubmissionID)
		}
		bySubmission[assessment.SubmissionID] = append(bySubmission[assessment.SubmissionID], assessment)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var changes []Change
	for _, submissionID := range order {
		changes = append(changes, evaluateSubmission(bySubmission[submissionID], factor)...)
	}
	return changes, nil
}

func (b *Best) resolveSettings(ctx context.Context, workshopID uint, raw json.RawMessage) (BestSettings, error) {
	if len(raw) == 0 {
		return b.Settings(ctx, workshopID)
	}

	var settings BestSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return BestSettings{}, fmt.Errorf("decode best settings: %w", err)
	}
	if err := validate.Struct(settings); err != nil {
		return BestSettings{}, err
	}
	record := models.BestEvaluationSettings{WorkshopID: workshopID, ComparisonLevel: settings.Comparison}
	if err := b.settings.Save(ctx, &record); err != nil {
		return BestSettings{}, err
	}
	return settings, nil
}

func evaluateSubmission(assessments []models.Assessment, factor float64) []Change {
	var graded []models.Assessment
	items := make([]grading.Weighted, 0, len(assessments))
	for _, assessment := range assessments {
		if !assessment.IsGraded() {
			continue
		}
		graded = append(graded, assessment)
		items = append(items, grading.Weighted{Value: assessment.Grade, Weight: float64(assessment.Weight)})
	}

	targets := make(map[uint]*float64, len(assessments))
	if len(graded) > 0 {
		mean, ok := grading.WeightedMean(items)
		if !ok {
			for i := range items {
				items[i].Weight = 1
			}
			mean, _ = grading.WeightedMean(items)
		}

		best := graded[0]
		for _, candidate := range graded[1:] {
			if math.Abs(*candidate.Grade-mean) < math.Abs(*best.Grade-mean) {
				best = candidate
			}
		}

		for _, assessment := range graded {
			distance := math.Abs(*assessment.Grade - *best.Grade)
			score := grading.Round(grading.Clamp(100-factor*distance, 0, 100), grading.DefaultDecimals)
			targets[assessment.ID] = &score
		}
	}

	var changes []Change
	for _, assessment := range assessments {
		target := targets[assessment.ID]
		if grading.Differ(assessment.GradingGrade, target, grading.DefaultDecimals) {
			changes = append(changes, Change{AssessmentID: assessment.ID, GradingGrade: target, ClearGradingGrade: target == nil})
		}
	}
	return changes
}

func (b *Best) DeleteInstance(ctx context.Context, workshopID uint) error {
	return b.settings.DeleteByWorkshop(ctx, workshopID)
}
