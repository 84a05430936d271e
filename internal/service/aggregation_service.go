package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// SubmissionGradeStore is the part of the submission repository aggregation needs.
type SubmissionGradeStore interface {
	SubmissionGradeRows(ctx context.Context, workshopID uint, submissionIDs []uint) ([]repository.SubmissionGradeRow, error)
	UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error
}

// GradingGradeStore loads the grading grades a reviewer collected.
type GradingGradeStore interface {
	GradingGradeRows(ctx context.Context, workshopID uint, reviewerIDs []uint) ([]repository.GradingGradeRow, error)
}

// AggregationStore persists the per-user grading grade aggregates.
type AggregationStore interface {
	Create(ctx context.Context, aggregation *models.Aggregation) error
	UpdateGrade(ctx context.Context, id uint, grade float64, gradedAt time.Time) error
}

// AggregationService recomputes stored aggregates from assessments. Both passes write only
// values that changed at the configured precision.
type AggregationService interface {
	AggregateSubmissionGrades(ctx context.Context, batch []repository.SubmissionGradeRow) (int, error)
	AggregateGradingGrades(ctx context.Context, batch []repository.GradingGradeRow, now time.Time) (int, error)
	RefreshSubmission(ctx context.Context, workshopID, submissionID uint) error
	RefreshReviewer(ctx context.Context, workshopID, reviewerID uint) error
	RefreshWorkshop(ctx context.Context, workshopID uint) error
}

type aggregationService struct {
	submissions  SubmissionGradeStore
	assessments  GradingGradeStore
	aggregations AggregationStore
	decimals     int
	logger       zerolog.Logger
	now          func() time.Time
}

// NewAggregationService wires the aggregation engine. decimals is the stored precision.
func NewAggregationService(submissions SubmissionGradeStore, assessments GradingGradeStore, aggregations AggregationStore, decimals int, logger zerolog.Logger) AggregationService {
	if decimals < 0 {
		decimals = grading.DefaultDecimals
	}
	return &aggregationService{
		submissions:  submissions,
		assessments:  assessments,
		aggregations: aggregations,
		decimals:     decimals,
		logger:       logger.With().Str("component", "aggregation_service").Logger(),
		now:          time.Now,
	}
}

var aggregationTracer = otel.Tracer("github.com/noah-isme/gema-workshop-api/internal/service/aggregation")

// AggregateSubmissionGrades expects the rows of one submission to be adjacent. Only
// graded assessments with a positive weight count.
func (s *aggregationService) AggregateSubmissionGrades(ctx context.Context, batch []repository.SubmissionGradeRow) (int, error) {
	ctx, span := aggregationTracer.Start(ctx, "aggregation.submission_grades")
	defer span.End()
	span.SetAttributes(attribute.Int("aggregation.rows", len(batch)))

	written := 0
	for start := 0; start < len(batch); {
		end := start
		for end < len(batch) && batch[end].SubmissionID == batch[start].SubmissionID {
			end++
		}
		changed, err := s.aggregateSubmission(ctx, batch[start:end])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission_aggregation_failed")
			return written, err
		}
		if changed {
			written++
		}
		start = end
	}

	span.SetAttributes(attribute.Int("aggregation.writes", written))
	return written, nil
}

func (s *aggregationService) aggregateSubmission(ctx context.Context, rows []repository.SubmissionGradeRow) (bool, error) {
	items := make([]grading.Weighted, 0, len(rows))
	for _, row := range rows {
		items = append(items, grading.Weighted{Value: row.Grade, Weight: float64(row.Weight)})
	}

	mean, ok := grading.WeightedMean(items)
	if !ok {
		return false, nil
	}
	value := grading.Round(mean, s.decimals)
	if !grading.Differ(rows[0].SubmissionGrade, &value, s.decimals) {
		return false, nil
	}

	if err := s.submissions.UpdateGrade(ctx, rows[0].SubmissionID, value, s.now().UTC()); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", rows[0].SubmissionID).Msg("failed to store submission grade")
		return false, err
	}
	observability.AggregationWrites().WithLabelValues("submission").Inc()
	return true, nil
}

// AggregateGradingGrades expects the rows of one reviewer to be adjacent. Every computed
// grading grade counts with unit weight, training assessments included; overrides stay on
// the assessment and are not folded in.
func (s *aggregationService) AggregateGradingGrades(ctx context.Context, batch []repository.GradingGradeRow, now time.Time) (int, error) {
	ctx, span := aggregationTracer.Start(ctx, "aggregation.grading_grades")
	defer span.End()
	span.SetAttributes(attribute.Int("aggregation.rows", len(batch)))

	written := 0
	for start := 0; start < len(batch); {
		end := start
		for end < len(batch) && batch[end].ReviewerID == batch[start].ReviewerID {
			end++
		}
		changed, err := s.aggregateReviewer(ctx, batch[start:end], now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_aggregation_failed")
			return written, err
		}
		if changed {
			written++
		}
		start = end
	}

	span.SetAttributes(attribute.Int("aggregation.writes", written))
	return written, nil
}

func (s *aggregationService) aggregateReviewer(ctx context.Context, rows []repository.GradingGradeRow, now time.Time) (bool, error) {
	items := make([]grading.Weighted, 0, len(rows))
	for _, row := range rows {
		items = append(items, grading.Weighted{Value: row.GradingGrade, Weight: 1})
	}

	mean, ok := grading.WeightedMean(items)
	if !ok {
		return false, nil
	}
	value := grading.Round(mean, s.decimals)
	first := rows[0]

	if first.AggregationID == nil {
		record := models.Aggregation{
			WorkshopID:   first.WorkshopID,
			UserID:       first.ReviewerID,
			GradingGrade: &value,
			TimeGraded:   &now,
		}
		if err := s.aggregations.Create(ctx, &record); err != nil {
			s.logger.Error().Err(err).Uint("reviewer_id", first.ReviewerID).Msg("failed to create aggregation")
			return false, err
		}
		observability.AggregationWrites().WithLabelValues("grading_created").Inc()
		return true, nil
	}

	if !grading.Differ(first.AggregatedGrade, &value, s.decimals) {
		return false, nil
	}
	if err := s.aggregations.UpdateGrade(ctx, *first.AggregationID, value, now); err != nil {
		s.logger.Error().Err(err).Uint("reviewer_id", first.ReviewerID).Msg("failed to update aggregation")
		return false, err
	}
	observability.AggregationWrites().WithLabelValues("grading").Inc()
	return true, nil
}

func (s *aggregationService) RefreshSubmission(ctx context.Context, workshopID, submissionID uint) error {
	rows, err := s.submissions.SubmissionGradeRows(ctx, workshopID, []uint{submissionID})
	if err != nil {
		return err
	}
	_, err = s.AggregateSubmissionGrades(ctx, rows)
	return err
}

func (s *aggregationService) RefreshReviewer(ctx context.Context, workshopID, reviewerID uint) error {
	rows, err := s.assessments.GradingGradeRows(ctx, workshopID, []uint{reviewerID})
	if err != nil {
		return err
	}
	_, err = s.AggregateGradingGrades(ctx, rows, s.now().UTC())
	return err
}

// RefreshWorkshop re-aggregates every submission and reviewer of the workshop.
func (s *aggregationService) RefreshWorkshop(ctx context.Context, workshopID uint) error {
	submissionRows, err := s.submissions.SubmissionGradeRows(ctx, workshopID, nil)
	if err != nil {
		return err
	}
	if _, err := s.AggregateSubmissionGrades(ctx, submissionRows); err != nil {
		return err
	}

	gradingRows, err := s.assessments.GradingGradeRows(ctx, workshopID, nil)
	if err != nil {
		return err
	}
	_, err = s.AggregateGradingGrades(ctx, gradingRows, s.now().UTC())
	return err
}
