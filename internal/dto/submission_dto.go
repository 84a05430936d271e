package dto

import (
	"time"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for submission upload.
type SubmissionCreateRequest struct {
	Title   string `form:"title" json:"title" validate:"required,min=1,max=255"`
	Content string `form:"content" json:"content" validate:"max=100000"`
	Example bool   `form:"example" json:"example"`
}

// SubmissionUpdateRequest edits an existing submission.
type SubmissionUpdateRequest struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=255"`
	Content *string `json:"content" validate:"omitempty,max=100000"`
}

// SubmissionOverrideRequest sets or clears the teacher's grade override.
type SubmissionOverrideRequest struct {
	GradeOver *float64 `json:"grade_over" validate:"omitempty,gte=0,lte=100"`
	Feedback  *string  `json:"feedback" validate:"omitempty,max=20000"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AuthorID *uint `query:"author_id"`
	Example  *bool `query:"example"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID             uint       `json:"id"`
	WorkshopID     uint       `json:"workshop_id"`
	AuthorID       uint       `json:"author_id"`
	Example        bool       `json:"example"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	AttachmentURL  string     `json:"attachment_url"`
	Grade          *float64   `json:"grade"`
	GradeOver      *float64   `json:"grade_over"`
	FinalGrade     *float64   `json:"final_grade"`
	DisplayGrade   string     `json:"display_grade"`
	FeedbackAuthor string     `json:"feedback_author"`
	Published      bool       `json:"published"`
	Late           bool       `json:"late"`
	TimeGraded     *time.Time `json:"time_graded"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO. The display grade is the
// final percentage scaled to the workshop's grade ceiling.
func NewSubmissionResponse(model models.Submission, workshop models.Workshop) SubmissionResponse {
	response := SubmissionResponse{
		ID:             model.ID,
		WorkshopID:     model.WorkshopID,
		AuthorID:       model.AuthorID,
		Example:        model.Example,
		Title:          model.Title,
		Content:        model.Content,
		AttachmentURL:  model.AttachmentURL,
		Grade:          model.Grade,
		GradeOver:      model.GradeOver,
		FinalGrade:     model.FinalGrade(),
		FeedbackAuthor: model.FeedbackAuthor,
		Published:      model.Published,
		Late:           model.Late,
		TimeGraded:     model.TimeGraded,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}

	var scaled *float64
	if final := model.FinalGrade(); final != nil {
		scaled = grading.Ptr(grading.Scale(*final, workshop.Grade))
	}
	response.DisplayGrade = grading.Format(scaled, workshop.GradeDecimals)

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission, workshop models.Workshop) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission, workshop))
	}

	return responses
}
