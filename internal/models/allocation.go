package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScheduledAllocation keeps the deferred random allocation settings and the outcome of its
// last execution for one workshop.
type ScheduledAllocation struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	WorkshopID    uint           `gorm:"not null;uniqueIndex" json:"workshop_id"`
	Enabled       bool           `gorm:"not null" json:"enabled"`
	Settings      datatypes.JSON `json:"settings"`
	SubmissionEnd *time.Time     `json:"submission_end"`
	TimeAllocated *time.Time     `json:"time_allocated"`
	ResultStatus  int            `gorm:"not null" json:"result_status"`
	ResultMessage string         `gorm:"size:1333" json:"result_message"`
	ResultLog     datatypes.JSON `json:"result_log"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName pins the scheduled allocation table name.
func (ScheduledAllocation) TableName() string { return "workshop_scheduled_allocations" }

// Participant is a course member taking part in a workshop. A user in several groups has
// one row per group; GroupID 0 means no group.
type Participant struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	WorkshopID uint `gorm:"not null;uniqueIndex:idx_participant" json:"workshop_id"`
	UserID     uint `gorm:"not null;uniqueIndex:idx_participant" json:"user_id"`
	GroupID    uint `gorm:"not null;uniqueIndex:idx_participant" json:"group_id"`
	CanSubmit  bool `gorm:"not null" json:"can_submit"`
	CanAssess  bool `gorm:"not null" json:"can_assess"`
}

// TableName pins the participant table name.
func (Participant) TableName() string { return "workshop_participants" }
