package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// AccumulativeName is the registry key of the accumulative strategy.
const AccumulativeName = "accumulative"

var validate = validator.New(validator.WithRequiredStructEnabled())

// FormStore persists strategy form definitions.
type FormStore interface {
	GetForm(ctx context.Context, workshopID uint, strategy string) (json.RawMessage, error)
	SaveForm(ctx context.Context, workshopID uint, strategy string, definition json.RawMessage) error
	DeleteForms(ctx context.Context, workshopID uint, strategy string) error
}

// Dimension is one criterion of an accumulative form.
type Dimension struct {
	ID          string  `json:"id" validate:"required,max=64"`
	Description string  `json:"description" validate:"max=2000"`
	MaxGrade    float64 `json:"max_grade" validate:"gt=0,lte=1000"`
	Weight      float64 `json:"weight" validate:"gte=0,lte=16"`
}

// AccumulativeDefinition is the stored form of the accumulative strategy.
type AccumulativeDefinition struct {
	Dimensions []Dimension `json:"dimensions" validate:"required,min=1,dive"`
}

// FilledForm is a reviewer's answer: one grade per dimension id.
type FilledForm struct {
	Grades map[string]float64 `json:"grades"`
}

// Accumulative sums weighted per-dimension grades into a percentage.
type Accumulative struct {
	forms FormStore
}

// NewAccumulative builds the strategy on top of a form store.
func NewAccumulative(forms FormStore) *Accumulative {
	return &Accumulative{forms: forms}
}

func (a *Accumulative) Name() string { return AccumulativeName }

// SaveDefinition validates and stores the workshop's form.
func (a *Accumulative) SaveDefinition(ctx context.Context, workshopID uint, def AccumulativeDefinition) error {
	if err := validate.Struct(def); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(def.Dimensions))
	var weights float64
	for _, dim := range def.Dimensions {
		if _, dup := seen[dim.ID]; dup {
			return fmt.Errorf("duplicate dimension %q", dim.ID)
		}
		seen[dim.ID] = struct{}{}
		weights += dim.Weight
	}
	if weights <= 0 {
		return errors.New("at least one dimension must carry a weight")
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return a.forms.SaveForm(ctx, workshopID, AccumulativeName, payload)
}

// Definition loads the workshop's form.
func (a *Accumulative) Definition(ctx context.Context, workshopID uint) (AccumulativeDefinition, error) {
	raw, err := a.forms.GetForm(ctx, workshopID, AccumulativeName)
	if err != nil {
		return AccumulativeDefinition{}, err
	}
	if len(raw) == 0 {
		return AccumulativeDefinition{}, ErrFormNotDefined
	}

	var def AccumulativeDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return AccumulativeDefinition{}, fmt.Errorf("decode accumulative form: %w", err)
	}
	if len(def.Dimensions) == 0 {
		return AccumulativeDefinition{}, ErrFormNotDefined
	}
	return def, nil
}

func (a *Accumulative) Score(ctx context.Context, workshopID uint, form json.RawMessage) (float64, error) {
	def, err := a.Definition(ctx, workshopID)
	if err != nil {
		return 0, err
	}
	normalized, err := normalize(def, form)
	if err != nil {
		return 0, err
	}

	items := make([]Weighted, 0, len(def.Dimensions))
	for i, dim := range def.Dimensions {
		items = append(items, Weighted{Value: Ptr(normalized[i] * 100), Weight: dim.Weight})
	}
	mean, ok := WeightedMean(items)
	if !ok {
		return 0, nil
	}
	return Round(mean, DefaultDecimals), nil
}

func (a *Accumulative) Compare(ctx context.Context, workshopID uint, reference, trainee json.RawMessage) (float64, error) {
	def, err := a.Definition(ctx, workshopID)
	if err != nil {
		return 0, err
	}
	ref, err := normalize(def, reference)
	if err != nil {
		return 0, fmt.Errorf("reference form: %w", err)
	}
	got, err := normalize(def, trainee)
	if err != nil {
		return 0, err
	}

	items := make([]Weighted, 0, len(def.Dimensions))
	for i, dim := range def.Dimensions {
		items = append(items, Weighted{Value: Ptr(math.Abs(ref[i] - got[i])), Weight: dim.Weight})
	}
	distance, ok := WeightedMean(items)
	if !ok {
		return 100, nil
	}
	return Round(Clamp(100*(1-distance), 0, 100), DefaultDecimals), nil
}

func (a *Accumulative) DeleteInstance(ctx context.Context, workshopID uint) error {
	return a.forms.DeleteForms(ctx, workshopID, AccumulativeName)
}

// normalize returns each dimension's grade as a fraction of its maximum, in definition order.
func normalize(def AccumulativeDefinition, raw json.RawMessage) ([]float64, error) {
	var form FilledForm
	if len(raw) == 0 {
		return nil, ErrIncompleteForm
	}
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("decode assessment form: %w", err)
	}

	out := make([]float64, len(def.Dimensions))
	for i, dim := range def.Dimensions {
		grade, ok := form.Grades[dim.ID]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrIncompleteForm, dim.ID)
		}
		if grade < 0 || grade > dim.MaxGrade {
			return nil, fmt.Errorf("%w: %q", ErrGradeOutOfRange, dim.ID)
		}
		out[i] = grade / dim.MaxGrade
	}
	return out, nil
}
