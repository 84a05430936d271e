package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog records a domain event fired by the workshop, for audit and completion tracking.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	EventID    string            `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	WorkshopID uint              `gorm:"not null;index" json:"workshop_id"`
	ActorID    uint              `gorm:"not null" json:"actor_id"`
	Action     string            `gorm:"size:64;not null" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// All returns every model managed by the workshop migrations.
func All() []interface{} {
	return []interface{}{
		&Workshop{},
		&Submission{},
		&Assessment{},
		&Aggregation{},
		&ScheduledAllocation{},
		&Participant{},
		&GradingForm{},
		&BestEvaluationSettings{},
		&GradeItem{},
		&ActivityLog{},
	}
}
