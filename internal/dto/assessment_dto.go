package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// AssessmentSubmitRequest is a reviewer's filled grading form.
type AssessmentSubmitRequest struct {
	Form             json.RawMessage `json:"form" validate:"required"`
	FeedbackAuthor   string          `json:"feedback_author" validate:"max=20000"`
	FeedbackReviewer string          `json:"feedback_reviewer" validate:"max=20000"`
}

// GradingGradeOverrideRequest sets or clears the grading grade override.
type GradingGradeOverrideRequest struct {
	GradingGradeOver *float64 `json:"grading_grade_over" validate:"omitempty,gte=0,lte=100"`
}

// AssessmentResponse serializes an assessment.
type AssessmentResponse struct {
	ID               uint      `json:"id"`
	SubmissionID     uint      `json:"submission_id"`
	ReviewerID       uint      `json:"reviewer_id"`
	Weight           int       `json:"weight"`
	Grade            *float64  `json:"grade"`
	GradingGrade     *float64  `json:"grading_grade"`
	GradingGradeOver *float64  `json:"grading_grade_over"`
	FeedbackAuthor   string    `json:"feedback_author"`
	FeedbackReviewer string    `json:"feedback_reviewer"`
	Graded           bool      `json:"graded"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewAssessmentResponse converts an assessment model into a DTO.
func NewAssessmentResponse(model models.Assessment) AssessmentResponse {
	return AssessmentResponse{
		ID:               model.ID,
		SubmissionID:     model.SubmissionID,
		ReviewerID:       model.ReviewerID,
		Weight:           model.Weight,
		Grade:            model.Grade,
		GradingGrade:     model.GradingGrade,
		GradingGradeOver: model.GradingGradeOver,
		FeedbackAuthor:   model.FeedbackAuthor,
		FeedbackReviewer: model.FeedbackReviewer,
		Graded:           model.IsGraded(),
		UpdatedAt:        model.UpdatedAt,
	}
}

// AllocationAddRequest pairs a reviewer with a submission.
type AllocationAddRequest struct {
	SubmissionID uint `json:"submission_id" validate:"required,gt=0"`
	ReviewerID   uint `json:"reviewer_id" validate:"required,gt=0"`
	Weight       *int `json:"weight" validate:"omitempty,gte=0,lte=16"`
}

// AllocationAddResponse reports the assessment backing an allocation.
type AllocationAddResponse struct {
	AssessmentID uint `json:"assessment_id"`
	Existing     bool `json:"existing"`
}

// AllocatorRequest carries allocator specific settings.
type AllocatorRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// AllocationResultResponse serializes the outcome of an allocator run.
type AllocationResultResponse struct {
	Allocator  string                `json:"allocator"`
	Status     string                `json:"status"`
	StatusCode int                   `json:"status_code"`
	Message    string                `json:"message"`
	Log        []allocation.LogEntry `json:"log"`
	TimeStart  time.Time             `json:"time_start"`
	TimeEnd    time.Time             `json:"time_end"`
}

// NewAllocationResultResponse converts an allocator result into a DTO.
func NewAllocationResultResponse(name string, result *allocation.Result) AllocationResultResponse {
	if result == nil {
		return AllocationResultResponse{Allocator: name, Status: allocation.StatusVoid.String(), Log: []allocation.LogEntry{}}
	}
	log := result.Log
	if log == nil {
		log = []allocation.LogEntry{}
	}
	return AllocationResultResponse{
		Allocator:  name,
		Status:     result.Status.String(),
		StatusCode: int(result.Status),
		Message:    result.Message,
		Log:        log,
		TimeStart:  result.TimeStart,
		TimeEnd:    result.TimeEnd,
	}
}

// EvaluateRequest carries evaluator settings.
type EvaluateRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// EvaluationResponse summarises an evaluation pass.
type EvaluationResponse struct {
	Evaluator string `json:"evaluator"`
	Changed   int    `json:"changed"`
}
