package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// ParticipantRepository stores the workshop roster used by the allocators.
type ParticipantRepository interface {
	ListByWorkshop(ctx context.Context, workshopID uint) ([]models.Participant, error)
	Upsert(ctx context.Context, participant *models.Participant) error
	Remove(ctx context.Context, workshopID, userID uint) error
}

type participantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository instantiates the repository.
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) ListByWorkshop(ctx context.Context, workshopID uint) ([]models.Participant, error) {
	var participants []models.Participant
	if err := r.db.WithContext(ctx).
		Where("workshop_id = ?", workshopID).
		Order("user_id, group_id").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepository) Upsert(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workshop_id"}, {Name: "user_id"}, {Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"can_submit", "can_assess"}),
	}).Create(participant).Error
}

func (r *participantRepository) Remove(ctx context.Context, workshopID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("workshop_id = ? AND user_id = ?", workshopID, userID).
		Delete(&models.Participant{}).Error
}
