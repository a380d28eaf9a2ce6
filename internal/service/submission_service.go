package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
)

// SubmissionService handles student submissions and teacher corrections.
type SubmissionService interface {
	Submit(ctx context.Context, problemID string, req dto.SubmissionCreateRequest, actor Actor) (models.Submission, error)
	Get(ctx context.Context, id string) (models.Submission, error)
	ListByProblem(ctx context.Context, problemID string) ([]models.Submission, error)
	UpdateFeedback(ctx context.Context, id string, req dto.FeedbackUpdateRequest, actor Actor) (models.Submission, error)
}

type submissionService struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	grader      Grader
	validator   *validator.Validate
	activity    ActivityRecorder
	events      EventPublisher
	sanitizer   *grading.Sanitizer
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(problems repository.ProblemRepository, submissions repository.SubmissionRepository, grader Grader, validate *validator.Validate, activity ActivityRecorder, events EventPublisher, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		problems:    problems,
		submissions: submissions,
		grader:      grader,
		validator:   validate,
		activity:    activity,
		events:      events,
		sanitizer:   grading.NewSanitizer(),
		tracer:      otel.Tracer("github.com/kurid3v/AVinci/internal/service/submission"),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit grades the answer synchronously and only persists it once feedback
// is available, so a stored submission always carries a grading result.
func (s *submissionService) Submit(ctx context.Context, problemID string, req dto.SubmissionCreateRequest, actor Actor) (models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.String("problem_id", problemID),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return models.Submission{}, err
	}

	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return models.Submission{}, notFound(err, ErrProblemNotFound)
	}

	submission := models.Submission{
		ProblemID:   problem.ID,
		SubmitterID: actor.ID,
		SubmittedAt: s.now().UTC(),
	}

	switch problem.Type {
	case models.ProblemTypeEssay:
		essay := ""
		if req.Essay != nil {
			essay = strings.TrimSpace(*req.Essay)
		}
		if essay == "" {
			return models.Submission{}, ErrEmptySubmission
		}
		submission.Essay = &essay

		existing, err := s.submissions.ListByProblem(ctx, problem.ID)
		if err != nil {
			return models.Submission{}, err
		}
		outcome, err := gradeEssayWithSimilarity(ctx, s.grader, s.logger, problem, essay,
			grading.SelectReferenceExample(existing), grading.EssayCorpus(existing, ""))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_failed")
			return models.Submission{}, err
		}
		submission.Feedback = outcome.feedback
		submission.SimilarityCheck = outcome.similarity

	case models.ProblemTypeReadingComprehension:
		answers := req.Answers
		if strings.TrimSpace(req.RawAnswers) != "" {
			distributed, err := s.grader.DistributeAnswers(ctx, req.RawAnswers, problem.Questions)
			if err != nil {
				return models.Submission{}, err
			}
			answers = grading.MergeAnswers(answers, distributed)
		}
		if !hasAnswer(answers) {
			return models.Submission{}, ErrEmptySubmission
		}
		submission.Answers = answers

		feedback, err := s.grader.GradeReadingComprehension(ctx, problem, answers)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_failed")
			return models.Submission{}, err
		}
		submission.Feedback = feedback

	default:
		return models.Submission{}, wrapf(ErrWrongProblemType, "unknown problem type %q", problem.Type)
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	s.logger.Info().
		Str("problem_id", problem.ID).
		Str("submission_id", submission.ID).
		Float64("total_score", submission.Feedback.TotalScore).
		Msg("submission graded")

	publishEvent(ctx, s.events, s.logger, GradingEvent{
		Type:         EventSubmissionGraded,
		ProblemID:    problem.ID,
		SubmissionID: submission.ID,
		Data:         map[string]any{"totalScore": submission.Feedback.TotalScore, "maxScore": submission.Feedback.MaxScore},
	})
	return submission, nil
}

func (s *submissionService) Get(ctx context.Context, id string) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, notFound(err, ErrSubmissionNotFound)
	}
	return submission, nil
}

func (s *submissionService) ListByProblem(ctx context.Context, problemID string) ([]models.Submission, error) {
	if _, err := s.problems.GetByID(ctx, problemID); err != nil {
		return nil, notFound(err, ErrProblemNotFound)
	}

	submissions, err := s.submissions.ListByProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if submissions == nil {
		submissions = []models.Submission{}
	}
	return submissions, nil
}

// UpdateFeedback replaces the feedback with a teacher correction. Every score
// must lie within [0, criterion max]; the submission becomes a reference
// candidate for later essay grading.
func (s *submissionService) UpdateFeedback(ctx context.Context, id string, req dto.FeedbackUpdateRequest, actor Actor) (models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "submission.update_feedback", trace.WithAttributes(
		attribute.String("submission_id", id),
		attribute.String("actor_id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return models.Submission{}, err
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, notFound(err, ErrSubmissionNotFound)
	}

	problem, err := s.problems.GetByID(ctx, submission.ProblemID)
	if err != nil {
		return models.Submission{}, notFound(err, ErrProblemNotFound)
	}

	feedback, err := s.teacherFeedback(problem, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score_out_of_range")
		return models.Submission{}, err
	}

	editedAt := s.now().UTC()
	updated, err := s.submissions.UpdateGrading(ctx, id, repository.GradingUpdate{
		Feedback:        feedback,
		TeacherEditedAt: &editedAt,
	})
	if err != nil {
		return models.Submission{}, notFound(err, ErrSubmissionNotFound)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityFeedbackEdited,
		EntityType: "submission",
		EntityID:   id,
		Metadata: map[string]interface{}{
			"problem_id":     problem.ID,
			"previous_total": submission.Feedback.TotalScore,
			"new_total":      feedback.TotalScore,
		},
	})
	publishEvent(ctx, s.events, s.logger, GradingEvent{
		Type:         EventFeedbackEdited,
		ProblemID:    problem.ID,
		SubmissionID: id,
		Data:         map[string]any{"totalScore": feedback.TotalScore},
	})
	return updated, nil
}

func (s *submissionService) teacherFeedback(problem models.Problem, req dto.FeedbackUpdateRequest) (models.Feedback, error) {
	details := make([]models.DetailedFeedbackItem, 0, len(req.DetailedFeedback))
	for i, item := range req.DetailedFeedback {
		limit := criterionLimit(problem, item, i)
		score := *item.Score
		if score < 0 || score > limit {
			return models.Feedback{}, wrapf(ErrScoreOutOfRange, "%q must be between 0 and %g", item.Criterion, limit)
		}
		details = append(details, models.DetailedFeedbackItem{
			Criterion:  item.Criterion,
			Score:      score,
			Feedback:   item.Feedback,
			QuestionID: item.QuestionID,
		})
	}

	feedback := s.sanitizer.Feedback(models.Feedback{
		DetailedFeedback:   details,
		GeneralSuggestions: req.GeneralSuggestions,
	})

	if problem.IsEssay() {
		return grading.FinalizeEssayFeedback(feedback, problem.RubricItems, problem.MaxScoreTarget()), nil
	}

	var total, maxTotal float64
	for _, item := range feedback.DetailedFeedback {
		total += item.Score
	}
	for _, question := range problem.Questions {
		maxTotal += question.EffectiveMaxScore()
	}
	feedback.TotalScore = grading.Round2(total)
	feedback.MaxScore = grading.Round2(maxTotal)
	return feedback, nil
}

func criterionLimit(problem models.Problem, item dto.FeedbackItemRequest, index int) float64 {
	if problem.IsEssay() {
		if limit, ok := grading.CriterionMax(problem.RubricItems, item.Criterion, index); ok {
			return limit
		}
		return problem.MaxScoreTarget()
	}

	for _, question := range problem.Questions {
		if question.ID == item.QuestionID {
			return question.EffectiveMaxScore()
		}
	}
	if index < len(problem.Questions) {
		return problem.Questions[index].EffectiveMaxScore()
	}
	return 0
}

func hasAnswer(answers []models.Answer) bool {
	for _, answer := range answers {
		if !answer.IsEmpty() {
			return true
		}
	}
	return false
}
