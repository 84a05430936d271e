// Package bootstrap assembles the workshop services shared by the API server and the
// periodic driver.
package bootstrap

import (
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/config"
	"github.com/noah-isme/gema-workshop-api/internal/evaluation"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/pkg/redislock"
)

// Infra carries the connections the services run on. Publisher and Files may be nil:
// events then stay in the activity log and attachments are rejected.
type Infra struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Publisher service.EventPublisher
	Files     service.FileStore
}

// Container holds the wired services.
type Container struct {
	Validate    *validator.Validate
	Plugins     service.Plugins
	Activity    service.ActivityService
	Aggregation service.AggregationService
	Phases      service.PhaseService
	Workshops   service.WorkshopService
	Submissions service.SubmissionService
	Assessments service.AssessmentService
	Allocations service.AllocationService
	Evaluation  service.EvaluationService
	Cron        service.CronService
}

// Build registers the grading, allocation and evaluation plugins and constructs every
// service on top of them.
func Build(cfg config.Config, infra Infra, logger zerolog.Logger) *Container {
	db := infra.DB
	validate := validator.New(validator.WithRequiredStructEnabled())

	store := allocation.Store{
		Workshops:    repository.NewWorkshopRepository(db),
		Submissions:  repository.NewSubmissionRepository(db),
		Assessments:  repository.NewAssessmentRepository(db),
		Participants: repository.NewParticipantRepository(db),
		Scheduled:    repository.NewScheduledAllocationRepository(db),
	}
	forms := repository.NewGradingFormRepository(db)
	bestSettings := repository.NewBestSettingsRepository(db)
	aggregations := repository.NewAggregationRepository(db)
	locker := redislock.New(infra.Redis, cfg.LockTTL, logger)

	plugins := service.Plugins{
		Strategies: grading.NewRegistry(),
		Allocators: allocation.NewRegistry(),
		Evaluators: evaluation.NewRegistry(),
	}
	newRandom := func() *allocation.Random { return allocation.NewRandom(store, logger) }
	plugins.Strategies.Register(grading.AccumulativeName, func() grading.Strategy { return grading.NewAccumulative(forms) })
	plugins.Allocators.Register(allocation.ManualName, func() allocation.Allocator { return allocation.NewManual(store, logger) })
	plugins.Allocators.Register(allocation.RandomName, func() allocation.Allocator { return newRandom() })
	plugins.Allocators.Register(allocation.ScheduledName, func() allocation.Allocator {
		return allocation.NewScheduled(store, newRandom, locker, cfg.LockTimeout, logger)
	})
	plugins.Evaluators.Register(evaluation.BestName, func() evaluation.Evaluator { return evaluation.NewBest(bestSettings) })

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	sinks := []service.EventSink{activity}
	if infra.Publisher != nil {
		sinks = append(sinks, service.NewBusEventSink(infra.Publisher, logger))
	}
	events := service.NewEventSinks(sinks...)

	files := infra.Files
	if files == nil {
		files = rejectingFileStore{}
	}

	decimals := cfg.AggregationDecimals
	gradebook := service.NewGradebook(repository.NewGradeItemRepository(db))
	defaults := service.WorkshopDefaults{Grade: cfg.DefaultGrade, GradingGrade: cfg.DefaultGradingGrade}

	c := &Container{Validate: validate, Plugins: plugins, Activity: activity}
	c.Aggregation = service.NewAggregationService(store.Submissions, store.Assessments, aggregations, decimals, logger)
	c.Phases = service.NewPhaseService(store.Workshops, store.Submissions, store.Assessments, gradebook, events, decimals, logger)
	c.Allocations = service.NewAllocationService(store, plugins.Allocators, events, logger)
	c.Cron = service.NewCronService(store.Scheduled, store.Workshops, c.Allocations, c.Phases, cfg.CronCheckPhase, logger)
	c.Workshops = service.NewWorkshopService(store.Workshops, store.Participants, plugins, gradebook, events, c.Cron, defaults, validate, logger)
	c.Submissions = service.NewSubmissionService(store.Workshops, store.Submissions, store.Assessments, files, events, validate, logger)
	c.Assessments = service.NewAssessmentService(store, plugins.Strategies, c.Aggregation, events, validate, logger)
	c.Evaluation = service.NewEvaluationService(store.Workshops, store.Assessments, aggregations, plugins.Evaluators, c.Aggregation, events, logger)
	return c
}
