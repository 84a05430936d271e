package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-workshop-api/internal/models"
)

// GradeItemRepository is the gorm-backed gradebook ledger.
type GradeItemRepository interface {
	// Publish upserts the grades of every given gradebook item in a single transaction.
	Publish(ctx context.Context, workshopID uint, items map[int]map[uint]*float64) error
	List(ctx context.Context, workshopID uint, item int) ([]models.GradeItem, error)
	DeleteByWorkshop(ctx context.Context, workshopID uint) error
}

type gradeItemRepository struct {
	db *gorm.DB
}

// NewGradeItemRepository instantiates the repository.
func NewGradeItemRepository(db *gorm.DB) GradeItemRepository {
	return &gradeItemRepository{db: db}
}

func (r *gradeItemRepository) Publish(ctx context.Context, workshopID uint, items map[int]map[uint]*float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for item, grades := range items {
			for userID, grade := range grades {
				entry := models.GradeItem{
					WorkshopID: workshopID,
					ItemNumber: item,
					UserID:     userID,
					Grade:      grade,
					UpdatedAt:  now,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "workshop_id"}, {Name: "item_number"}, {Name: "user_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"grade", "updated_at"}),
				}).Create(&entry).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *gradeItemRepository) List(ctx context.Context, workshopID uint, item int) ([]models.GradeItem, error) {
	var items []models.GradeItem
	if err := r.db.WithContext(ctx).
		Where("workshop_id = ? AND item_number = ?", workshopID, item).
		Order("user_id").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gradeItemRepository) DeleteByWorkshop(ctx context.Context, workshopID uint) error {
	return r.db.WithContext(ctx).Where("workshop_id = ?", workshopID).Delete(&models.GradeItem{}).Error
}
