package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/registry"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
)

// CronReport summarises one periodic run.
type CronReport struct {
	ScheduledRuns   map[allocation.Status]int
	ScheduledErrors int
	PhaseSwitches   int
}

// WorkshopRefresher applies the time-driven transitions of a single workshop.
type WorkshopRefresher interface {
	Refresh(ctx context.Context, workshopID uint, now time.Time) (bool, error)
}

// CronService is the periodic driver: due scheduled allocations first, then the
// automatic switch to the assessment phase. Refresh does the same for one workshop when
// it is accessed.
type CronService interface {
	WorkshopRefresher
	Run(ctx context.Context, now time.Time) (CronReport, error)
}

type cronService struct {
	scheduled  repository.ScheduledAllocationRepository
	workshops  repository.WorkshopRepository
	allocation AllocationService
	phases     PhaseService
	checkPhase bool
	logger     zerolog.Logger
}

// NewCronService constructs the periodic driver.
func NewCronService(
	scheduled repository.ScheduledAllocationRepository,
	workshops repository.WorkshopRepository,
	allocationService AllocationService,
	phases PhaseService,
	checkPhase bool,
	logger zerolog.Logger,
) CronService {
	return &cronService{
		scheduled:  scheduled,
		workshops:  workshops,
		allocation: allocationService,
		phases:     phases,
		checkPhase: checkPhase,
		logger:     logger.With().Str("component", "cron_service").Logger(),
	}
}

// Run processes every due workshop. A failing workshop is logged and skipped; only
// failures to list the due workshops abort the run.
func (s *cronService) Run(ctx context.Context, now time.Time) (CronReport, error) {
	report := CronReport{ScheduledRuns: make(map[allocation.Status]int)}

	due, err := s.scheduled.ListDue(ctx, now)
	if err != nil {
		return report, err
	}
	for _, workshopID := range due {
		result, err := s.allocation.RunScheduled(ctx, workshopID, s.checkPhase, now)
		if err != nil {
			report.ScheduledErrors++
			s.logger.Error().Err(err).Uint("workshop_id", workshopID).Msg("scheduled allocation failed")
			continue
		}
		report.ScheduledRuns[result.Status]++
		s.logger.Info().
			Uint("workshop_id", workshopID).
			Str("status", result.Status.String()).
			Str("message", result.Message).
			Msg("scheduled allocation processed")
	}

	switchable, err := s.workshops.ListDueForAutoSwitch(ctx, now)
	if err != nil {
		return report, err
	}
	for _, workshop := range switchable {
		switched, err := s.phases.CheckAutoSwitch(ctx, workshop.ID, now)
		if err != nil {
			s.logger.Error().Err(err).Uint("workshop_id", workshop.ID).Msg("automatic phase switch failed")
			continue
		}
		if switched {
			report.PhaseSwitches++
		}
	}

	return report, nil
}

// Refresh switches a workshop whose submission deadline has passed to the assessment
// phase, running its scheduled allocation first so the allocator still sees the
// submission phase. The boolean reports whether the phase changed.
func (s *cronService) Refresh(ctx context.Context, workshopID uint, now time.Time) (bool, error) {
	workshop, err := s.workshops.GetByID(ctx, workshopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if workshop.Phase != models.PhaseSubmission || !workshop.PhaseSwitchAssessment || !workshop.SubmissionDeadlinePassed(now) {
		return false, nil
	}

	result, err := s.allocation.RunScheduled(ctx, workshopID, s.checkPhase, now)
	switch {
	case errors.Is(err, registry.ErrUnknown):
		// no scheduled allocator registered
	case err != nil:
		s.logger.Error().Err(err).Uint("workshop_id", workshopID).Msg("scheduled allocation before phase switch failed")
	default:
		s.logger.Debug().Uint("workshop_id", workshopID).Str("status", result.Status.String()).Msg("scheduled allocation before phase switch")
	}

	return s.phases.CheckAutoSwitch(ctx, workshopID, now)
}
