package models

import "time"

// Aggregation stores a user's aggregated grading grade within one workshop.
type Aggregation struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	WorkshopID   uint       `gorm:"not null;uniqueIndex:idx_aggregation_user" json:"workshop_id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_aggregation_user" json:"user_id"`
	GradingGrade *float64   `json:"grading_grade"`
	TimeGraded   *time.Time `json:"time_graded"`
}

// TableName pins the aggregation table name.
func (Aggregation) TableName() string { return "workshop_aggregations" }
