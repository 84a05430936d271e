package models

import "time"

// Phase is the lifecycle stage of a workshop.
type Phase int

const (
	PhaseSetup      Phase = 10
	PhaseSubmission Phase = 20
	PhaseAssessment Phase = 30
	PhaseEvaluation Phase = 40
	PhaseClosed     Phase = 50
)

// Phases lists every phase in forward order.
var Phases = []Phase{PhaseSetup, PhaseSubmission, PhaseAssessment, PhaseEvaluation, PhaseClosed}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseSetup, PhaseSubmission, PhaseAssessment, PhaseEvaluation, PhaseClosed:
		return true
	}
	return false
}

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseSubmission:
		return "submission"
	case PhaseAssessment:
		return "assessment"
	case PhaseEvaluation:
		return "evaluation"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ExamplesMode controls when example submissions must be assessed.
type ExamplesMode int

const (
	ExamplesVoluntary        ExamplesMode = 0
	ExamplesBeforeSubmission ExamplesMode = 1
	ExamplesBeforeAssessment ExamplesMode = 2
)

// GroupMode restricts which participants may review each other.
type GroupMode int

const (
	GroupModeNone     GroupMode = 0
	GroupModeSeparate GroupMode = 1
	GroupModeVisible  GroupMode = 2
)

// Workshop is one peer-assessment activity placed in a course.
type Workshop struct {
	ID                    uint         `gorm:"primaryKey" json:"id"`
	CourseID              uint         `gorm:"index;not null" json:"course_id"`
	Name                  string       `gorm:"size:255;not null" json:"name"`
	Intro                 string       `gorm:"type:text" json:"intro"`
	Phase                 Phase        `gorm:"not null;index" json:"phase"`
	Grade                 float64      `gorm:"not null" json:"grade"`
	GradingGrade          float64      `gorm:"not null" json:"grading_grade"`
	GradeDecimals         int          `gorm:"not null" json:"grade_decimals"`
	Strategy              string       `gorm:"size:32;not null" json:"strategy"`
	Evaluation            string       `gorm:"size:32;not null" json:"evaluation"`
	SubmissionStart       *time.Time   `json:"submission_start"`
	SubmissionEnd         *time.Time   `json:"submission_end"`
	AssessmentStart       *time.Time   `json:"assessment_start"`
	AssessmentEnd         *time.Time   `json:"assessment_end"`
	LateSubmissions       bool         `gorm:"not null" json:"late_submissions"`
	UseSelfAssessment     bool         `gorm:"not null" json:"use_self_assessment"`
	UseExamples           bool         `gorm:"not null" json:"use_examples"`
	ExamplesMode          ExamplesMode `gorm:"not null" json:"examples_mode"`
	GroupMode             GroupMode    `gorm:"not null" json:"group_mode"`
	PhaseSwitchAssessment bool         `gorm:"not null" json:"phase_switch_assessment"`
	NAttachments          int          `gorm:"not null" json:"n_attachments"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// TableName pins the workshop table name.
func (Workshop) TableName() string { return "workshops" }

// SubmissionDeadlinePassed reports whether a submission deadline is set and already over.
func (w Workshop) SubmissionDeadlinePassed(now time.Time) bool {
	return w.SubmissionEnd != nil && now.After(*w.SubmissionEnd)
}

// SubmissionNotOpen reports whether the submission window has a start still in the future.
func (w Workshop) SubmissionNotOpen(now time.Time) bool {
	return w.SubmissionStart != nil && w.SubmissionStart.After(now)
}

// InAssessmentWindow reports whether now lies inside the configured assessment window.
// Unset boundaries are open.
func (w Workshop) InAssessmentWindow(now time.Time) bool {
	if w.AssessmentStart != nil && w.AssessmentStart.After(now) {
		return false
	}
	if w.AssessmentEnd != nil && now.After(*w.AssessmentEnd) {
		return false
	}
	return true
}
