package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingForm holds a grading strategy's form definition for a workshop.
type GradingForm struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	WorkshopID uint           `gorm:"not null;uniqueIndex:idx_grading_form" json:"workshop_id"`
	Strategy   string         `gorm:"size:32;not null;uniqueIndex:idx_grading_form" json:"strategy"`
	Definition datatypes.JSON `json:"definition"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName pins the grading form table name.
func (GradingForm) TableName() string { return "workshop_grading_forms" }

// BestEvaluationSettings stores the comparison strictness of the "best" evaluator.
type BestEvaluationSettings struct {
	ID              uint `gorm:"primaryKey" json:"id"`
	WorkshopID      uint `gorm:"not null;uniqueIndex" json:"workshop_id"`
	ComparisonLevel int  `gorm:"not null" json:"comparison_level"`
}

// TableName pins the evaluation settings table name.
func (BestEvaluationSettings) TableName() string { return "workshop_eval_best_settings" }

// Gradebook item numbers.
const (
	GradeItemSubmission = 0
	GradeItemGrading    = 1
)

// GradeItem is one published gradebook entry.
type GradeItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	WorkshopID uint      `gorm:"not null;uniqueIndex:idx_grade_item" json:"workshop_id"`
	ItemNumber int       `gorm:"not null;uniqueIndex:idx_grade_item" json:"item_number"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_grade_item" json:"user_id"`
	Grade      *float64  `json:"grade"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName pins the grade item table name.
func (GradeItem) TableName() string { return "workshop_grade_items" }
