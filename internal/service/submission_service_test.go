package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/models"
)

func newSubmissionService(store testStore, grader Grader, events EventPublisher) SubmissionService {
	activity := NewActivityService(store.activity, testLogger())
	return NewSubmissionService(store.problems, store.submissions, grader, testValidator(), activity, events, testLogger())
}

func ptrString(v string) *string {
	return &v
}

func ptrFloat(v float64) *float64 {
	return &v
}

func TestSubmitEssayPersistsFeedbackAndSimilarity(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	store.essaySubmission(t, problem.ID, "earlier essay")

	events := &recordingPublisher{}
	svc := newSubmissionService(store, &fakeGrader{}, events)

	submission, err := svc.Submit(context.Background(), problem.ID, dto.SubmissionCreateRequest{
		Essay: ptrString("  My town has a river.  "),
	}, Actor{ID: "student-1", Role: "student"})
	require.NoError(t, err)
	require.NotEmpty(t, submission.ID)
	require.Equal(t, "My town has a river.", submission.EssayText())
	require.Equal(t, 8.0, submission.Feedback.TotalScore)
	require.NotNil(t, submission.SimilarityCheck)
	require.Equal(t, 0, submission.SimilarityCheck.MostSimilarEssayIndex)

	stored, err := svc.Get(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, submission.Feedback, stored.Feedback)
	require.Equal(t, []string{EventSubmissionGraded}, events.types())
}

func TestSubmitEssaySurvivesSimilarityFailure(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	svc := newSubmissionService(store, &fakeGrader{similarity: errors.New("boom")}, nil)

	submission, err := svc.Submit(context.Background(), problem.ID, dto.SubmissionCreateRequest{
		Essay: ptrString("Short essay."),
	}, Actor{ID: "student-1"})
	require.NoError(t, err)
	require.Nil(t, submission.SimilarityCheck)
}

func TestSubmitEssayGradingFailureStoresNothing(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	svc := newSubmissionService(store, &fakeGrader{failOn: map[string]bool{"bad": true}}, nil)

	_, err := svc.Submit(context.Background(), problem.ID, dto.SubmissionCreateRequest{Essay: ptrString("bad")}, Actor{ID: "s"})
	require.ErrorIs(t, err, errGraderFailed)

	list, err := svc.ListByProblem(context.Background(), problem.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSubmitRejectsEmptyAnswers(t *testing.T) {
	store := setupStore(t)
	essay := store.essayProblem(t)
	reading := store.readingProblem(t)
	svc := newSubmissionService(store, &fakeGrader{}, nil)

	_, err := svc.Submit(context.Background(), essay.ID, dto.SubmissionCreateRequest{Essay: ptrString("   ")}, Actor{ID: "s"})
	require.ErrorIs(t, err, ErrEmptySubmission)

	_, err = svc.Submit(context.Background(), reading.ID, dto.SubmissionCreateRequest{
		Answers: []models.Answer{{QuestionID: "q1"}},
	}, Actor{ID: "s"})
	require.ErrorIs(t, err, ErrEmptySubmission)

	_, err = svc.Submit(context.Background(), "missing", dto.SubmissionCreateRequest{Essay: ptrString("x")}, Actor{ID: "s"})
	require.ErrorIs(t, err, ErrProblemNotFound)
}

func TestSubmitReadingMergesDistributedAnswers(t *testing.T) {
	store := setupStore(t)
	problem := store.readingProblem(t)
	grader := &fakeGrader{distributed: []models.Answer{{QuestionID: "q2", WrittenAnswer: "It is about nature."}}}
	svc := newSubmissionService(store, grader, nil)

	submission, err := svc.Submit(context.Background(), problem.ID, dto.SubmissionCreateRequest{
		Answers:    []models.Answer{{QuestionID: "q1", SelectedOptionID: "optA"}},
		RawAnswers: "2. It is about nature.",
	}, Actor{ID: "student-1"})
	require.NoError(t, err)
	require.Len(t, submission.Answers, 2)
	require.Equal(t, "optA", submission.Answers[0].SelectedOptionID)
	require.Equal(t, "It is about nature.", submission.Answers[1].WrittenAnswer)
	require.Equal(t, 3.0, submission.Feedback.TotalScore)
	require.Equal(t, 3.0, submission.Feedback.MaxScore)
}

func TestUpdateFeedbackMarksTeacherEdit(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	original := store.essaySubmission(t, problem.ID, "an essay")
	events := &recordingPublisher{}
	svc := newSubmissionService(store, &fakeGrader{}, events)

	updated, err := svc.UpdateFeedback(context.Background(), original.ID, dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{
			{Criterion: "Content", Score: ptrFloat(5), Feedback: "<b>Good</b> ideas"},
			{Criterion: "Language", Score: ptrFloat(4), Feedback: "Clean"},
		},
		GeneralSuggestions: []string{"Add examples", "  "},
	}, Actor{ID: "teacher-1", Role: "teacher"})
	require.NoError(t, err)
	require.True(t, updated.IsTeacherEdited())
	require.Equal(t, 9.0, updated.Feedback.TotalScore)
	require.Equal(t, 10.0, updated.Feedback.MaxScore)
	require.Equal(t, "Good ideas", updated.Feedback.DetailedFeedback[0].Feedback)
	require.Equal(t, []string{"Add examples"}, updated.Feedback.GeneralSuggestions)
	require.Equal(t, []string{EventFeedbackEdited}, events.types())
}

func TestUpdateFeedbackRejectsOutOfRangeScores(t *testing.T) {
	store := setupStore(t)
	problem := store.essayProblem(t)
	original := store.essaySubmission(t, problem.ID, "an essay")
	svc := newSubmissionService(store, &fakeGrader{}, nil)

	_, err := svc.UpdateFeedback(context.Background(), original.ID, dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{
			{Criterion: "Content", Score: ptrFloat(5)},
			{Criterion: "Language", Score: ptrFloat(4.5)},
		},
	}, Actor{ID: "teacher-1"})
	require.ErrorIs(t, err, ErrScoreOutOfRange)

	_, err = svc.UpdateFeedback(context.Background(), original.ID, dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{{Criterion: "Content", Score: ptrFloat(-1)}},
	}, Actor{ID: "teacher-1"})
	require.ErrorIs(t, err, ErrScoreOutOfRange)

	stored, err := svc.Get(context.Background(), original.ID)
	require.NoError(t, err)
	require.False(t, stored.IsTeacherEdited())
}

func TestUpdateFeedbackReadingSumsQuestionScores(t *testing.T) {
	store := setupStore(t)
	problem := store.readingProblem(t)
	svc := newSubmissionService(store, &fakeGrader{}, nil)

	submission, err := svc.Submit(context.Background(), problem.ID, dto.SubmissionCreateRequest{
		Answers: []models.Answer{{QuestionID: "q1", SelectedOptionID: "optB"}},
	}, Actor{ID: "student-1"})
	require.NoError(t, err)

	_, err = svc.UpdateFeedback(context.Background(), submission.ID, dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{{Criterion: "Where?", QuestionID: "q1", Score: ptrFloat(2)}},
	}, Actor{ID: "teacher-1"})
	require.ErrorIs(t, err, ErrScoreOutOfRange)

	updated, err := svc.UpdateFeedback(context.Background(), submission.ID, dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{
			{Criterion: "Where?", QuestionID: "q1", Score: ptrFloat(1)},
			{Criterion: "Theme?", QuestionID: "q2", Score: ptrFloat(1.5)},
		},
	}, Actor{ID: "teacher-1"})
	require.NoError(t, err)
	require.Equal(t, 2.5, updated.Feedback.TotalScore)
	require.Equal(t, 3.0, updated.Feedback.MaxScore)
}

func TestUpdateFeedbackMissingSubmission(t *testing.T) {
	store := setupStore(t)
	svc := newSubmissionService(store, &fakeGrader{}, nil)

	_, err := svc.UpdateFeedback(context.Background(), "missing", dto.FeedbackUpdateRequest{
		DetailedFeedback: []dto.FeedbackItemRequest{{Criterion: "Content", Score: ptrFloat(1)}},
	}, Actor{ID: "teacher-1"})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
