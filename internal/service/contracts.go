package service

import (
	"context"
	"io"

	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// Gradebook receives the final grades of a closed workshop. Item 0 carries submission
// grades, item 1 grading grades; a nil grade clears the user's entry. All items of one
// call are written or none is.
type Gradebook interface {
	PublishGradeItems(ctx context.Context, workshopID uint, items map[int]map[uint]*float64) error
	DeleteGradeItems(ctx context.Context, workshopID uint) error
}

// FileStore keeps attachments in named file areas and returns their location.
type FileStore interface {
	StoreArea(ctx context.Context, area, name string, reader io.Reader) (string, error)
}

// File areas.
const (
	AreaSubmissionAttachment = "submission_attachment"
	AreaOverallFeedback      = "overallfeedback_attachment"
)

type gradeItemGradebook struct {
	repo repository.GradeItemRepository
}

// NewGradebook stores published grades in the workshop grade item table.
func NewGradebook(repo repository.GradeItemRepository) Gradebook {
	return &gradeItemGradebook{repo: repo}
}

func (g *gradeItemGradebook) PublishGradeItems(ctx context.Context, workshopID uint, items map[int]map[uint]*float64) error {
	return g.repo.Publish(ctx, workshopID, items)
}

func (g *gradeItemGradebook) DeleteGradeItems(ctx context.Context, workshopID uint) error {
	return g.repo.DeleteByWorkshop(ctx, workshopID)
}
