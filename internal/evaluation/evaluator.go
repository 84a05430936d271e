// Package evaluation post-processes assessments during the evaluation phase.
package evaluation

import (
	"context"
	"encoding/json"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/registry"
)

// BestName is the key of the built-in evaluator.
const BestName = "best"

// Change is one value an evaluator wants rewritten. Nil fields are left alone; a grading
// grade is reset to NULL only when ClearGradingGrade is set.
type Change struct {
	AssessmentID      uint
	GradingGrade      *float64
	ClearGradingGrade bool
	Weight            *int
}

// TouchesGradingGrade reports whether the change writes the grading grade column.
func (c Change) TouchesGradingGrade() bool {
	return c.GradingGrade != nil || c.ClearGradingGrade
}

// Evaluator turns the assessments of real submissions into grading grade and weight
// changes. Evaluate must return no changes when run again on its own output.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, workshop models.Workshop, assessments []models.Assessment, settings json.RawMessage) ([]Change, error)
	DeleteInstance(ctx context.Context, workshopID uint) error
}

// Registry maps evaluator keys to constructors.
type Registry = registry.Registry[Evaluator]

// NewRegistry returns an empty evaluator registry.
func NewRegistry() *Registry {
	return registry.New[Evaluator]()
}
