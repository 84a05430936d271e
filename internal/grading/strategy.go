package grading

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/noah-isme/gema-workshop-api/internal/registry"
)

var (
	// ErrFormNotDefined indicates the workshop has no form for the strategy yet.
	ErrFormNotDefined = errors.New("grading form not defined")
	// ErrIncompleteForm indicates a filled form misses a dimension.
	ErrIncompleteForm = errors.New("assessment form incomplete")
	// ErrGradeOutOfRange indicates a dimension grade outside its allowed range.
	ErrGradeOutOfRange = errors.New("dimension grade out of range")
)

// Strategy scores filled assessment forms. Both methods return a 0–100 percentage.
type Strategy interface {
	Name() string
	// Score grades the assessed submission from a filled form.
	Score(ctx context.Context, workshopID uint, form json.RawMessage) (float64, error)
	// Compare measures how closely a trainee's form matches the reference form.
	Compare(ctx context.Context, workshopID uint, reference, trainee json.RawMessage) (float64, error)
	// DeleteInstance removes whatever the strategy persisted for the workshop.
	DeleteInstance(ctx context.Context, workshopID uint) error
}

// Registry maps strategy keys to constructors.
type Registry = registry.Registry[Strategy]

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry {
	return registry.New[Strategy]()
}
