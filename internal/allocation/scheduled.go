package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
	"github.com/noah-isme/gema-workshop-api/pkg/redislock"
)

// LockName scopes the scheduled allocation lock; the resource is the workshop id.
const LockName = "workshopallocation_scheduled"

// Locker hands out named locks scoped to a resource id.
type Locker interface {
	Acquire(ctx context.Context, name string, resourceID uint, timeout time.Duration) (redislock.Releaser, error)
}

// ScheduledSettings is the persisted configuration of the scheduled allocator.
type ScheduledSettings struct {
	Enabled  bool           `json:"enabled"`
	Settings RandomSettings `json:"settings"`
}

// ExecuteOptions tunes a manual trigger of the scheduled run.
type ExecuteOptions struct {
	CheckPhase *bool `json:"checkphase,omitempty"`
}

// Scheduled stores random allocation settings and runs them once the submission deadline
// has passed.
type Scheduled struct {
	store       Store
	random      func() *Random
	locker      Locker
	lockTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewScheduled constructs the scheduled allocator. random builds the allocator the run
// delegates to.
func NewScheduled(store Store, random func() *Random, locker Locker, lockTimeout time.Duration, logger zerolog.Logger) *Scheduled {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &Scheduled{
		store:       store,
		random:      random,
		locker:      locker,
		lockTimeout: lockTimeout,
		logger:      componentLogger(logger, ScheduledName),
		now:         utcNow,
	}
}

func (s *Scheduled) Name() string { return ScheduledName }

// Init persists the settings. Nothing is allocated until the deadline passes.
func (s *Scheduled) Init(ctx context.Context, workshop models.Workshop, raw json.RawMessage) (*Result, error) {
	settings := ScheduledSettings{Settings: DefaultRandomSettings()}
	if err := decodeSettings(raw, &settings); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(settings.Settings)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Scheduled.Get(ctx, workshop.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	record.WorkshopID = workshop.ID
	record.Enabled = settings.Enabled
	record.Settings = datatypes.JSON(encoded)

	result := NewResult(s.now())
	if settings.Enabled {
		result.Finish(StatusConfigured, "scheduled allocation enabled", s.now())
		result.Logf(LogInfo, 0, "%d reviews per %s after the submission deadline", settings.Settings.NumOfReviews, settings.Settings.NumPer)
	} else {
		result.Finish(StatusVoid, "scheduled allocation disabled", s.now())
	}
	record.ResultStatus = int(result.Status)
	record.ResultMessage = result.Message
	if err := s.store.Scheduled.Save(ctx, &record); err != nil {
		return nil, err
	}

	s.logger.Info().Uint("workshop_id", workshop.ID).Bool("enabled", settings.Enabled).Msg("scheduled allocation configured")
	return result, nil
}

// Execute runs the scheduled allocation immediately, still honouring its guards.
func (s *Scheduled) Execute(ctx context.Context, workshop models.Workshop, raw json.RawMessage, result *Result) error {
	var opts ExecuteOptions
	if err := decodeSettings(raw, &opts); err != nil {
		return err
	}
	checkPhase := opts.CheckPhase == nil || *opts.CheckPhase

	outcome, err := s.Run(ctx, workshop.ID, checkPhase, s.now())
	if outcome != nil {
		*result = *outcome
	}
	return err
}

// Run is the deferred execution path used by the periodic driver. Failing to obtain the
// lock yields a FAILED result without retrying; the lock is released on every path.
func (s *Scheduled) Run(ctx context.Context, workshopID uint, checkPhase bool, now time.Time) (*Result, error) {
	result := NewResult(now)

	held, err := s.locker.Acquire(ctx, LockName, workshopID, s.lockTimeout)
	if err != nil {
		result.Logf(LogError, 0, "unable to obtain the allocation lock: %v", err)
		result.Finish(StatusFailed, "scheduled allocation is locked by another process", now)
		observability.ScheduledRuns().WithLabelValues("locked").Inc()
		s.logger.Warn().Err(err).Uint("workshop_id", workshopID).Msg("scheduled allocation lock not acquired")
		return result, nil
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Uint("workshop_id", workshopID).Msg("scheduled allocation lock release failed")
		}
	}()

	return s.runLocked(ctx, workshopID, checkPhase, now, result)
}

func (s *Scheduled) runLocked(ctx context.Context, workshopID uint, checkPhase bool, now time.Time, result *Result) (*Result, error) {
	workshop, err := s.store.Workshops.GetByID(ctx, workshopID)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Scheduled.Get(ctx, workshopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.skip(result, "scheduled allocation not configured", now), nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !record.Enabled:
		return s.skip(result, "scheduled allocation disabled", now), nil
	case checkPhase && workshop.Phase != models.PhaseSubmission:
		return s.skip(result, "workshop is not in the submission phase", now), nil
	case workshop.SubmissionEnd == nil:
		return s.skip(result, "no submission deadline set", now), nil
	case !now.After(*workshop.SubmissionEnd):
		return s.skip(result, "submission deadline not reached", now), nil
	case executedFor(record, *workshop.SubmissionEnd):
		return s.skip(result, "already executed for the current submission deadline", now), nil
	}

	result.Logf(LogInfo, 0, "executing scheduled allocation for deadline %s", workshop.SubmissionEnd.UTC().Format(time.RFC3339))
	runErr := s.random().Execute(ctx, workshop, json.RawMessage(record.Settings), result)

	record.ResultStatus = int(result.Status)
	record.ResultMessage = result.Message
	if encoded, err := json.Marshal(result.Log); err == nil {
		record.ResultLog = datatypes.JSON(encoded)
	}
	if result.Status == StatusExecuted {
		executedAt := now
		deadline := *workshop.SubmissionEnd
		record.TimeAllocated = &executedAt
		record.SubmissionEnd = &deadline
	}
	if err := s.store.Scheduled.Save(ctx, &record); err != nil {
		return result, err
	}

	observability.ScheduledRuns().WithLabelValues(result.Status.String()).Inc()
	s.logger.Info().
		Uint("workshop_id", workshopID).
		Str("status", result.Status.String()).
		Str("message", result.Message).
		Msg("scheduled allocation finished")
	return result, runErr
}

func (s *Scheduled) skip(result *Result, message string, now time.Time) *Result {
	result.Logf(LogInfo, 0, "%s", message)
	result.Finish(StatusVoid, message, now)
	observability.ScheduledRuns().WithLabelValues(StatusVoid.String()).Inc()
	return result
}

// executedFor reports whether the last successful run used this deadline. Any change of
// the deadline, later or earlier, re-arms the run.
func executedFor(record models.ScheduledAllocation, deadline time.Time) bool {
	return record.TimeAllocated != nil && record.SubmissionEnd != nil && record.SubmissionEnd.Equal(deadline)
}

func (s *Scheduled) DeleteInstance(ctx context.Context, workshopID uint) error {
	return s.store.Scheduled.DeleteByWorkshop(ctx, workshopID)
}
