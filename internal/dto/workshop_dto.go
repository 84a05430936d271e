package dto

import (
	"time"

	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// WorkshopSettingsRequest carries the editable settings of a workshop instance.
type WorkshopSettingsRequest struct {
	Name                  string     `json:"name" validate:"required,min=3,max=255"`
	Intro                 string     `json:"intro" validate:"max=20000"`
	Grade                 *float64   `json:"grade" validate:"omitempty,gte=0,lte=100"`
	GradingGrade          *float64   `json:"grading_grade" validate:"omitempty,gte=0,lte=100"`
	GradeDecimals         int        `json:"grade_decimals" validate:"gte=0,lte=5"`
	Strategy              string     `json:"strategy" validate:"omitempty,max=32"`
	Evaluation            string     `json:"evaluation" validate:"omitempty,max=32"`
	SubmissionStart       *time.Time `json:"submission_start"`
	SubmissionEnd         *time.Time `json:"submission_end"`
	AssessmentStart       *time.Time `json:"assessment_start"`
	AssessmentEnd         *time.Time `json:"assessment_end"`
	LateSubmissions       bool       `json:"late_submissions"`
	UseSelfAssessment     bool       `json:"use_self_assessment"`
	UseExamples           bool       `json:"use_examples"`
	ExamplesMode          int        `json:"examples_mode" validate:"oneof=0 1 2"`
	GroupMode             int        `json:"group_mode" validate:"oneof=0 1 2"`
	PhaseSwitchAssessment bool       `json:"phase_switch_assessment"`
	NAttachments          int        `json:"n_attachments" validate:"gte=0,lte=20"`
}

// WorkshopCreateRequest places a new workshop in a course.
type WorkshopCreateRequest struct {
	CourseID uint `json:"course_id" validate:"required,gt=0"`
	WorkshopSettingsRequest
}

// PhaseSwitchRequest asks for a phase change.
type PhaseSwitchRequest struct {
	Phase int `json:"phase" validate:"required,oneof=10 20 30 40 50"`
}

// ResetRequest selects which user data a reset removes.
type ResetRequest struct {
	Submissions bool `json:"submissions"`
	Assessments bool `json:"assessments"`
	Phase       bool `json:"phase"`
}

// ResetStatus reports the outcome of one reset component.
type ResetStatus struct {
	Component string `json:"component"`
	Item      string `json:"item"`
	Error     bool   `json:"error"`
}

// GradingFormRequest replaces the workshop's grading form definition.
type GradingFormRequest struct {
	Definition grading.AccumulativeDefinition `json:"definition" validate:"required"`
}

// ParticipantRequest enrols a user into the workshop roster.
type ParticipantRequest struct {
	UserID    uint `json:"user_id" validate:"required,gt=0"`
	GroupID   uint `json:"group_id"`
	CanSubmit bool `json:"can_submit"`
	CanAssess bool `json:"can_assess"`
}

// WorkshopResponse is returned to API clients when viewing workshops.
type WorkshopResponse struct {
	ID                    uint       `json:"id"`
	CourseID              uint       `json:"course_id"`
	Name                  string     `json:"name"`
	Intro                 string     `json:"intro"`
	Phase                 int        `json:"phase"`
	PhaseName             string     `json:"phase_name"`
	Grade                 float64    `json:"grade"`
	GradingGrade          float64    `json:"grading_grade"`
	GradeDecimals         int        `json:"grade_decimals"`
	Strategy              string     `json:"strategy"`
	Evaluation            string     `json:"evaluation"`
	SubmissionStart       *time.Time `json:"submission_start"`
	SubmissionEnd         *time.Time `json:"submission_end"`
	AssessmentStart       *time.Time `json:"assessment_start"`
	AssessmentEnd         *time.Time `json:"assessment_end"`
	LateSubmissions       bool       `json:"late_submissions"`
	UseSelfAssessment     bool       `json:"use_self_assessment"`
	UseExamples           bool       `json:"use_examples"`
	ExamplesMode          int        `json:"examples_mode"`
	GroupMode             int        `json:"group_mode"`
	PhaseSwitchAssessment bool       `json:"phase_switch_assessment"`
	NAttachments          int        `json:"n_attachments"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// NewWorkshopResponse converts a Workshop model into a DTO.
func NewWorkshopResponse(model models.Workshop) WorkshopResponse {
	return WorkshopResponse{
		ID:                    model.ID,
		CourseID:              model.CourseID,
		Name:                  model.Name,
		Intro:                 model.Intro,
		Phase:                 int(model.Phase),
		PhaseName:             model.Phase.String(),
		Grade:                 model.Grade,
		GradingGrade:          model.GradingGrade,
		GradeDecimals:         model.GradeDecimals,
		Strategy:              model.Strategy,
		Evaluation:            model.Evaluation,
		SubmissionStart:       model.SubmissionStart,
		SubmissionEnd:         model.SubmissionEnd,
		AssessmentStart:       model.AssessmentStart,
		AssessmentEnd:         model.AssessmentEnd,
		LateSubmissions:       model.LateSubmissions,
		UseSelfAssessment:     model.UseSelfAssessment,
		UseExamples:           model.UseExamples,
		ExamplesMode:          int(model.ExamplesMode),
		GroupMode:             int(model.GroupMode),
		PhaseSwitchAssessment: model.PhaseSwitchAssessment,
		NAttachments:          model.NAttachments,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}

// ParticipantResponse serializes a roster entry.
type ParticipantResponse struct {
	UserID    uint `json:"user_id"`
	GroupID   uint `json:"group_id"`
	CanSubmit bool `json:"can_submit"`
	CanAssess bool `json:"can_assess"`
}

// NewParticipantResponse converts a roster model into a DTO.
func NewParticipantResponse(model models.Participant) ParticipantResponse {
	return ParticipantResponse{
		UserID:    model.UserID,
		GroupID:   model.GroupID,
		CanSubmit: model.CanSubmit,
		CanAssess: model.CanAssess,
	}
}
