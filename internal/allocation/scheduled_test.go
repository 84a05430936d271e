package allocation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
	"github.com/noah-isme/gema-workshop-api/pkg/redislock"
)

var deadline = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupLocker(t *testing.T) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redislock.New(client, time.Minute, zerolog.Nop()).WithRetryInterval(5 * time.Millisecond), server
}

func newScheduled(store Store, locker Locker, timeout time.Duration) *Scheduled {
	return NewScheduled(store, func() *Random {
		return NewRandom(store, zerolog.Nop()).WithSeed(1)
	}, locker, timeout, zerolog.Nop())
}

func setupScheduled(t *testing.T) (*gorm.DB, Store, *Scheduled, models.Workshop, *miniredis.Miniredis) {
	t.Helper()
	db := setupTestDB(t)
	store := newStore(db)
	locker, server := setupLocker(t)
	scheduled := newScheduled(store, locker, 20*time.Millisecond)

	workshop := seedWorkshop(t, db, func(w *models.Workshop) {
		end := deadline
		w.SubmissionEnd = &end
	})
	seedAuthors(t, db, workshop.ID, 1, 2, 3, 4)

	result, err := scheduled.Init(context.Background(), workshop, json.RawMessage(`{"enabled":true,"settings":{"numofreviews":2}}`))
	require.NoError(t, err)
	require.Equal(t, StatusConfigured, result.Status)
	require.Zero(t, countAssessments(t, db), "init must not allocate")

	return db, store, scheduled, workshop, server
}

func TestScheduledRunsOncePerDeadline(t *testing.T) {
	db, store, scheduled, workshop, _ := setupScheduled(t)
	ctx := context.Background()

	result, err := scheduled.Run(ctx, workshop.ID, true, deadline.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)
	require.Zero(t, countAssessments(t, db))

	result, err = scheduled.Run(ctx, workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, result.Status)
	require.Equal(t, int64(8), countAssessments(t, db))

	result, err = scheduled.Run(ctx, workshop.ID, true, deadline.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)
	require.Equal(t, "already executed for the current submission deadline", result.Message)

	record, err := store.Scheduled.Get(ctx, workshop.ID)
	require.NoError(t, err)
	require.Equal(t, int(StatusExecuted), record.ResultStatus)
	require.NotNil(t, record.TimeAllocated)
	require.True(t, record.SubmissionEnd.Equal(deadline))
	require.NotEmpty(t, record.ResultLog)
}

func TestScheduledRearmsWhenDeadlineChanges(t *testing.T) {
	db, store, scheduled, workshop, _ := setupScheduled(t)
	ctx := context.Background()

	_, err := scheduled.Run(ctx, workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)

	extended := deadline.Add(time.Hour)
	workshop.SubmissionEnd = &extended
	require.NoError(t, store.Workshops.Update(ctx, &workshop))
	seedAuthors(t, db, workshop.ID, 5)

	result, err := scheduled.Run(ctx, workshop.ID, true, extended.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, result.Status)

	var late models.Submission
	require.NoError(t, db.Where("author_id = ?", 5).First(&late).Error)
	count, err := store.Submissions.CountAssessments(ctx, late.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestScheduledChecksPhaseUnlessBypassed(t *testing.T) {
	db, store, scheduled, workshop, _ := setupScheduled(t)
	ctx := context.Background()

	swapped, err := store.Workshops.SwapPhase(ctx, workshop.ID, models.PhaseSubmission, models.PhaseAssessment)
	require.NoError(t, err)
	require.True(t, swapped)

	result, err := scheduled.Run(ctx, workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)
	require.Zero(t, countAssessments(t, db))

	result, err = scheduled.Run(ctx, workshop.ID, false, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, result.Status)
}

func TestScheduledDisabledDoesNothing(t *testing.T) {
	db, _, scheduled, workshop, _ := setupScheduled(t)
	ctx := context.Background()

	result, err := scheduled.Init(ctx, workshop, json.RawMessage(`{"enabled":false}`))
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)

	result, err = scheduled.Run(ctx, workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusVoid, result.Status)
	require.Zero(t, countAssessments(t, db))
}

func TestScheduledLockHeldFailsWithoutRetry(t *testing.T) {
	db := setupTestDB(t)
	store := newStore(db)
	locker, _ := setupLocker(t)
	scheduled := newScheduled(store, locker, 20*time.Millisecond)
	workshop := seedWorkshop(t, db, func(w *models.Workshop) {
		end := deadline
		w.SubmissionEnd = &end
	})
	seedAuthors(t, db, workshop.ID, 1, 2, 3)
	_, err := scheduled.Init(context.Background(), workshop, json.RawMessage(`{"enabled":true,"settings":{"numofreviews":1}}`))
	require.NoError(t, err)

	holder, err := locker.Acquire(context.Background(), LockName, workshop.ID, 0)
	require.NoError(t, err)

	result, err := scheduled.Run(context.Background(), workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Zero(t, countAssessments(t, db))

	require.NoError(t, holder.Release(context.Background()))

	result, err = scheduled.Run(context.Background(), workshop.ID, true, deadline.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, result.Status)
}

type panickingWorkshops struct {
	repository.WorkshopRepository
}

func (panickingWorkshops) GetByID(context.Context, uint) (models.Workshop, error) {
	panic("database driver crashed")
}

func TestScheduledReleasesLockOnPanic(t *testing.T) {
	locker, server := setupLocker(t)
	scheduled := newScheduled(Store{Workshops: panickingWorkshops{}}, locker, 0)

	require.Panics(t, func() {
		_, _ = scheduled.Run(context.Background(), 3, true, deadline)
	})
	require.False(t, server.Exists(redislock.Key(LockName, 3)))
}

func TestScheduledDeleteInstance(t *testing.T) {
	_, store, scheduled, workshop, _ := setupScheduled(t)

	require.NoError(t, scheduled.DeleteInstance(context.Background(), workshop.ID))
	_, err := store.Scheduled.Get(context.Background(), workshop.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
