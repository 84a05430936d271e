package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/pkg/redislock"
)

func setupCron(t *testing.T) (*testEnv, CronService, *redislock.Locker, models.Workshop) {
	t.Helper()
	env := newTestEnv(t)

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client, time.Minute, testLogger()).WithRetryInterval(5 * time.Millisecond)

	scheduled := allocation.NewScheduled(env.store, func() *allocation.Random {
		return allocation.NewRandom(env.store, testLogger()).WithSeed(3)
	}, locker, 20*time.Millisecond, testLogger())
	env.plugins.Allocators.Register(allocation.ScheduledName, func() allocation.Allocator { return scheduled })

	workshop := env.seedWorkshop(t, func(w *models.Workshop) {
		w.Phase = models.PhaseSubmission
		w.SubmissionEnd = timeRef(at(0))
		w.PhaseSwitchAssessment = true
	})
	for _, author := range []uint{1, 2, 3, 4} {
		env.seedSubmission(t, workshop.ID, author, false)
	}
	_, err = env.allocations.Init(context.Background(), teacher, workshop.ID, allocation.ScheduledName,
		json.RawMessage(`{"enabled":true,"settings":{"numofreviews":2}}`))
	require.NoError(t, err)

	cron := NewCronService(env.store.Scheduled, env.store.Workshops, env.allocations, env.phases, true, testLogger())
	return env, cron, locker, workshop
}

func countAllAssessments(t *testing.T, env *testEnv) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(&models.Assessment{}).Count(&count).Error)
	return count
}

func TestCronAllocatesBeforeSwitchingPhase(t *testing.T) {
	env, cron, _, workshop := setupCron(t)

	report, err := cron.Run(context.Background(), at(-1))
	require.NoError(t, err)
	require.Empty(t, report.ScheduledRuns)
	require.Zero(t, report.PhaseSwitches)
	require.Zero(t, countAllAssessments(t, env))

	report, err = cron.Run(context.Background(), at(1))
	require.NoError(t, err)
	require.Equal(t, 1, report.ScheduledRuns[allocation.StatusExecuted])
	require.Equal(t, 1, report.PhaseSwitches)
	require.Equal(t, int64(8), countAllAssessments(t, env))
	require.Equal(t, models.PhaseAssessment, env.reloadWorkshop(t, workshop.ID).Phase)

	report, err = cron.Run(context.Background(), at(2))
	require.NoError(t, err)
	require.Equal(t, 1, report.ScheduledRuns[allocation.StatusVoid])
	require.Zero(t, report.PhaseSwitches)
	require.Equal(t, int64(8), countAllAssessments(t, env))
}

func TestCronReportsLockedScheduledRun(t *testing.T) {
	env, cron, locker, workshop := setupCron(t)

	held, err := locker.Acquire(context.Background(), allocation.LockName, workshop.ID, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release(context.Background()) })

	report, err := cron.Run(context.Background(), at(1))
	require.NoError(t, err)
	require.Equal(t, 1, report.ScheduledRuns[allocation.StatusFailed])
	require.Zero(t, report.ScheduledErrors)
	require.Zero(t, countAllAssessments(t, env))
	require.Equal(t, 1, report.PhaseSwitches, "the phase switch does not depend on the allocation lock")
}

func TestWorkshopGetAppliesDueSwitchOnce(t *testing.T) {
	env, cron, _, workshop := setupCron(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	workshops := NewWorkshopService(env.store.Workshops, env.store.Participants, env.plugins, env.gradebook, env.events, cron,
		WorkshopDefaults{Grade: 80, GradingGrade: 20}, validate, testLogger()).(*workshopService)

	workshops.now = func() time.Time { return at(-1) }
	resp, err := workshops.Get(context.Background(), workshop.ID)
	require.NoError(t, err)
	require.Equal(t, int(models.PhaseSubmission), resp.Phase)
	require.Zero(t, countAllAssessments(t, env))

	workshops.now = func() time.Time { return at(1) }
	resp, err = workshops.Get(context.Background(), workshop.ID)
	require.NoError(t, err)
	require.Equal(t, int(models.PhaseAssessment), resp.Phase)
	require.Equal(t, int64(8), countAllAssessments(t, env), "the scheduled allocation runs before the switch")

	workshops.now = func() time.Time { return at(2) }
	resp, err = workshops.Get(context.Background(), workshop.ID)
	require.NoError(t, err)
	require.Equal(t, int(models.PhaseAssessment), resp.Phase)

	switches := 0
	for _, name := range env.events.names() {
		if name == EventPhaseSwitched {
			switches++
		}
	}
	require.Equal(t, 1, switches)
}
