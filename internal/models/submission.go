package models

import "time"

// Submission is an author's work, or a teacher-curated example used for training.
type Submission struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	WorkshopID     uint         `gorm:"not null;index" json:"workshop_id"`
	AuthorID       uint         `gorm:"not null;index" json:"author_id"`
	Example        bool         `gorm:"not null;index" json:"example"`
	Title          string       `gorm:"size:255;not null" json:"title"`
	Content        string       `gorm:"type:text" json:"content"`
	AttachmentURL  string       `gorm:"size:512" json:"attachment_url"`
	Grade          *float64     `json:"grade"`
	GradeOver      *float64     `json:"grade_over"`
	GradeOverBy    *uint        `json:"grade_over_by"`
	FeedbackAuthor string       `gorm:"type:text" json:"feedback_author"`
	Published      bool         `gorm:"not null" json:"published"`
	Late           bool         `gorm:"not null" json:"late"`
	TimeGraded     *time.Time   `json:"time_graded"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Assessments    []Assessment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TableName pins the submission table name.
func (Submission) TableName() string { return "workshop_submissions" }

// FinalGrade returns the teacher override when present, the aggregated grade otherwise.
func (s Submission) FinalGrade() *float64 {
	if s.GradeOver != nil {
		return s.GradeOver
	}
	return s.Grade
}
