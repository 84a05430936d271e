package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// WeightTraining marks a trainee's assessment of an example.
	WeightTraining = 0
	// WeightReference marks the canonical assessment of an example.
	WeightReference = 1
	// WeightDefault is the weight of a new peer assessment of a real submission.
	WeightDefault = 1
)

// Assessment pairs a reviewer with a submission and holds the review outcome.
type Assessment struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	SubmissionID       uint           `gorm:"not null;uniqueIndex:idx_assessment_pair" json:"submission_id"`
	ReviewerID         uint           `gorm:"not null;uniqueIndex:idx_assessment_pair;index" json:"reviewer_id"`
	Weight             int            `gorm:"not null" json:"weight"`
	Grade              *float64       `json:"grade"`
	GradingGrade       *float64       `json:"grading_grade"`
	GradingGradeOver   *float64       `json:"grading_grade_over"`
	GradingGradeOverBy *uint          `json:"grading_grade_over_by"`
	Form               datatypes.JSON `json:"form"`
	FeedbackAuthor     string         `gorm:"type:text" json:"feedback_author"`
	FeedbackReviewer   string         `gorm:"type:text" json:"feedback_reviewer"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TableName pins the assessment table name.
func (Assessment) TableName() string { return "workshop_assessments" }

// IsGraded reports whether the reviewer has submitted a grade.
func (a Assessment) IsGraded() bool {
	return a.Grade != nil
}

// EffectiveGradingGrade returns the override when present.
func (a Assessment) EffectiveGradingGrade() *float64 {
	if a.GradingGradeOver != nil {
		return a.GradingGradeOver
	}
	return a.GradingGrade
}
