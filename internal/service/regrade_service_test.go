package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
)

func newRegradeService(store testStore, grader Grader, locker Locker, events EventPublisher, concurrency int) RegradeService {
	activity := NewActivityService(store.activity, testLogger())
	return NewRegradeService(store.problems, store.submissions, grader, locker, testValidator(), activity, events,
		RegradeConfig{Concurrency: concurrency, LockTTL: time.Minute}, testLogger())
}

func TestRegradeAllCountsPartialFailure(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	first := store.essaySubmission(t, problem.ID, "first")
	second := store.essaySubmission(t, problem.ID, "second")
	third := store.essaySubmission(t, problem.ID, "third")

	grader := &fakeGrader{failOn: map[string]bool{"second": true}}
	events := &recordingPublisher{}
	svc := newRegradeService(store, grader, nil, events, 1)

	resp, err := svc.RegradeAll(context.Background(), problem.ID, Actor{ID: "teacher-1", Role: "teacher"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 2, resp.UpdatedCount)
	require.Equal(t, 1, resp.FailedCount)
	require.Equal(t, 3, resp.Total)

	for _, id := range []string{first.ID, third.ID} {
		updated, err := store.submissions.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, 8.0, updated.Feedback.TotalScore)
		require.NotNil(t, updated.SimilarityCheck)
	}

	untouched, err := store.submissions.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, 5.0, untouched.Feedback.TotalScore)

	require.Equal(t, []string{EventRegradeCompleted}, events.types())

	logs, total, err := store.activity.List(context.Background(), repository.ActivityLogFilter{EntityID: problem.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, models.ActivityProblemRegraded, logs[0].Action)
}

func TestRegradeClearsTeacherProvenance(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	submission := store.essaySubmission(t, problem.ID, "edited")

	editedAt := time.Now().UTC()
	_, err := store.submissions.UpdateGrading(context.Background(), submission.ID, repository.GradingUpdate{
		Feedback:        models.Feedback{TotalScore: 9, MaxScore: 10},
		TeacherEditedAt: &editedAt,
	})
	require.NoError(t, err)

	grader := &fakeGrader{}
	svc := newRegradeService(store, grader, nil, nil, 1)

	resp, err := svc.RegradeAll(context.Background(), problem.ID, SystemActor)
	require.NoError(t, err)
	require.Equal(t, 1, resp.UpdatedCount)

	updated, err := store.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Nil(t, updated.LastEditedByTeacherAt)
	require.False(t, updated.IsTeacherEdited())

	// The edited submission was the shared reference example for the batch.
	require.Len(t, grader.essayInputs, 1)
	require.NotNil(t, grader.essayInputs[0].Reference)
	require.Equal(t, submission.ID, grader.essayInputs[0].Reference.SubmissionID)
}

func TestRegradeSelectedRestrictsAndSkipsEdited(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	first := store.essaySubmission(t, problem.ID, "first")
	second := store.essaySubmission(t, problem.ID, "second")
	store.essaySubmission(t, problem.ID, "third")

	editedAt := time.Now().UTC()
	_, err := store.submissions.UpdateGrading(context.Background(), second.ID, repository.GradingUpdate{
		Feedback:        models.Feedback{TotalScore: 9, MaxScore: 10},
		TeacherEditedAt: &editedAt,
	})
	require.NoError(t, err)

	grader := &fakeGrader{}
	svc := newRegradeService(store, grader, nil, nil, 1)

	resp, err := svc.Regrade(context.Background(), problem.ID, dto.RegradeRequest{
		SubmissionIDs:        []string{first.ID, second.ID, "not-in-problem"},
		ExcludeTeacherEdited: true,
	}, SystemActor)
	require.NoError(t, err)
	require.Equal(t, 1, resp.UpdatedCount)
	require.Equal(t, 1, resp.SkippedCount)
	require.Equal(t, 2, resp.Total)
	require.Equal(t, []string{"first"}, grader.gradedEssays())

	kept, err := store.submissions.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.True(t, kept.IsTeacherEdited())
}

func TestRegradeMissingProblem(t *testing.T) {
	store := setupStore(t)
	svc := newRegradeService(store, &fakeGrader{}, nil, nil, 1)

	_, err := svc.RegradeAll(context.Background(), "missing", SystemActor)
	require.ErrorIs(t, err, ErrProblemNotFound)
}

func TestRegradeRejectsConcurrentBatch(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(client, "avinci:")

	release, err := locker.Acquire(context.Background(), "regrade:"+problem.ID, time.Minute)
	require.NoError(t, err)

	svc := newRegradeService(store, &fakeGrader{}, locker, nil, 1)
	_, err = svc.RegradeAll(context.Background(), problem.ID, SystemActor)
	require.ErrorIs(t, err, ErrRegradeInProgress)

	release()
	_, err = svc.RegradeAll(context.Background(), problem.ID, SystemActor)
	require.NoError(t, err)
	require.False(t, mr.Exists("avinci:regrade:"+problem.ID))
}

func TestRegradeStopsWhenCancelled(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	store.essaySubmission(t, problem.ID, "first")
	store.essaySubmission(t, problem.ID, "second")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grader := &fakeGrader{}
	svc := newRegradeService(store, grader, nil, nil, 1)

	_, err := svc.RegradeAll(ctx, problem.ID, SystemActor)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, grader.gradedEssays())
}

func TestRegradeBoundsConcurrency(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	for _, essay := range []string{"a", "b", "c", "d", "e"} {
		store.essaySubmission(t, problem.ID, essay)
	}

	block := make(chan struct{})
	grader := &fakeGrader{block: block}
	svc := newRegradeService(store, grader, nil, nil, 2)

	type result struct {
		resp dto.RegradeResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := svc.RegradeAll(context.Background(), problem.ID, SystemActor)
		done <- result{resp: resp, err: err}
	}()

	require.Eventually(t, func() bool {
		return len(grader.gradedEssays()) == 2
	}, time.Second, 5*time.Millisecond)
	close(block)

	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, 5, out.resp.UpdatedCount)
	require.LessOrEqual(t, grader.maxInFlight, 2)
}

func TestLocalLockerExpires(t *testing.T) {
	locker := NewLocalLocker()

	_, err := locker.Acquire(context.Background(), "k", 20*time.Millisecond)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "k", time.Minute)
	require.ErrorIs(t, err, errLockHeld)

	time.Sleep(30 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	release()
}

func TestRegradeSelectedWithEmptySelectionChangesNothing(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	gold := store.essaySubmission(t, problem.ID, "gold")
	store.essaySubmission(t, problem.ID, "other")

	editedAt := time.Now().UTC()
	_, err := store.submissions.UpdateGrading(context.Background(), gold.ID, repository.GradingUpdate{
		Feedback:        models.Feedback{TotalScore: 9, MaxScore: 10},
		TeacherEditedAt: &editedAt,
	})
	require.NoError(t, err)

	grader := &fakeGrader{}
	events := &recordingPublisher{}
	svc := newRegradeService(store, grader, nil, events, 1)

	for _, ids := range [][]string{{}, nil} {
		resp, err := svc.RegradeSelected(context.Background(), problem.ID, ids, SystemActor)
		require.NoError(t, err)
		require.True(t, resp.Success)
		require.Zero(t, resp.UpdatedCount)
		require.Zero(t, resp.Total)
	}

	resp, err := svc.Regrade(context.Background(), problem.ID, dto.RegradeRequest{SubmissionIDs: []string{}}, SystemActor)
	require.NoError(t, err)
	require.Zero(t, resp.UpdatedCount)

	require.Empty(t, grader.gradedEssays())
	require.Empty(t, events.types())

	kept, err := store.submissions.GetByID(context.Background(), gold.ID)
	require.NoError(t, err)
	require.True(t, kept.IsTeacherEdited())
	require.Equal(t, 9.0, kept.Feedback.TotalScore)
}

func TestRegradeStopsBeforeNextItemOnceCancelled(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	for _, essay := range []string{"first", "second", "third"} {
		store.essaySubmission(t, problem.ID, essay)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	grader := &fakeGrader{afterGrade: func(string) { once.Do(cancel) }}
	svc := newRegradeService(store, grader, nil, nil, 1)

	resp, err := svc.RegradeAll(ctx, problem.ID, SystemActor)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, resp.Success)
	require.Equal(t, 1, resp.UpdatedCount)
	require.Equal(t, 3, resp.Total)
	require.Len(t, grader.gradedEssays(), 1)

	submissions, err := store.submissions.ListByProblem(context.Background(), problem.ID)
	require.NoError(t, err)
	regraded := 0
	for _, submission := range submissions {
		if submission.Feedback.TotalScore == 8 {
			regraded++
		}
	}
	require.Equal(t, 1, regraded)
}
