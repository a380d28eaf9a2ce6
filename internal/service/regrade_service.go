package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	applogger "github.com/kurid3v/AVinci/internal/logger"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/observability"
	"github.com/kurid3v/AVinci/internal/repository"
)

const defaultRegradeLockTTL = 15 * time.Minute

// RegradeConfig bounds a batch regrade.
type RegradeConfig struct {
	// Concurrency caps in-flight grading calls. One means sequential.
	Concurrency int
	LockTTL     time.Duration
}

// RegradeService re-runs grading for the submissions of a problem.
type RegradeService interface {
	Regrade(ctx context.Context, problemID string, req dto.RegradeRequest, actor Actor) (dto.RegradeResponse, error)
	RegradeAll(ctx context.Context, problemID string, actor Actor) (dto.RegradeResponse, error)
	RegradeSelected(ctx context.Context, problemID string, submissionIDs []string, actor Actor) (dto.RegradeResponse, error)
}

type regradeService struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	grader      Grader
	locker      Locker
	validator   *validator.Validate
	activity    ActivityRecorder
	events      EventPublisher
	cfg         RegradeConfig
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewRegradeService constructs the batch regrade orchestrator. A nil locker
// falls back to an in-process lock.
func NewRegradeService(problems repository.ProblemRepository, submissions repository.SubmissionRepository, grader Grader, locker Locker, validate *validator.Validate, activity ActivityRecorder, events EventPublisher, cfg RegradeConfig, logger zerolog.Logger) RegradeService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultRegradeLockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	return &regradeService{
		problems:    problems,
		submissions: submissions,
		grader:      grader,
		locker:      locker,
		validator:   validate,
		activity:    activity,
		events:      events,
		cfg:         cfg,
		tracer:      otel.Tracer("github.com/kurid3v/AVinci/internal/service/regrade"),
		logger:      logger.With().Str("component", "regrade_service").Logger(),
	}
}

func (s *regradeService) RegradeAll(ctx context.Context, problemID string, actor Actor) (dto.RegradeResponse, error) {
	return s.Regrade(ctx, problemID, dto.RegradeRequest{All: true}, actor)
}

func (s *regradeService) RegradeSelected(ctx context.Context, problemID string, submissionIDs []string, actor Actor) (dto.RegradeResponse, error) {
	return s.Regrade(ctx, problemID, dto.RegradeRequest{SubmissionIDs: submissionIDs}, actor)
}

// Regrade grades every selected submission again with one shared reference
// example. Without req.All only the listed ids are regraded, and an empty
// list is a no-op. Individual failures are counted, never returned; the only errors
// are a missing problem, a concurrent regrade, storage failures while loading,
// and cancellation, which stops the batch between items and returns the
// counts reached so far.
func (s *regradeService) Regrade(ctx context.Context, problemID string, req dto.RegradeRequest, actor Actor) (dto.RegradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "regrade.batch", trace.WithAttributes(
		attribute.String("problem_id", problemID),
		attribute.Int("requested", len(req.SubmissionIDs)),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.RegradeResponse{}, err
	}

	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return dto.RegradeResponse{}, notFound(err, ErrProblemNotFound)
	}

	logger := applogger.ForContext(ctx, s.logger).With().Str("problem_id", problem.ID).Logger()

	if !req.All && len(req.SubmissionIDs) == 0 {
		logger.Info().Msg("regrade requested with an empty selection")
		return dto.RegradeResponse{Success: true}, nil
	}

	release, err := s.locker.Acquire(ctx, "regrade:"+problem.ID, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return dto.RegradeResponse{}, ErrRegradeInProgress
		}
		return dto.RegradeResponse{}, fmt.Errorf("acquire regrade lock: %w", err)
	}
	defer release()

	all, err := s.submissions.ListByProblem(ctx, problem.ID)
	if err != nil {
		return dto.RegradeResponse{}, err
	}

	targets, skipped := selectForRegrade(all, req)
	batch := regradeBatch{
		problem:   problem,
		all:       all,
		reference: grading.SelectReferenceExample(all),
	}

	var updated, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	var cancelErr error
	var abandoned atomic.Int64
	for _, submission := range targets {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		// Go blocks while the pool is full, so cancellation is checked again
		// once a slot is free.
		g.Go(func() error {
			if ctx.Err() != nil {
				abandoned.Add(1)
				return nil
			}
			// In-flight calls finish even if the batch is cancelled.
			itemCtx := context.WithoutCancel(ctx)
			if err := s.regradeOne(itemCtx, batch, submission); err != nil {
				failed.Add(1)
				observability.RegradeItems().WithLabelValues("failed").Inc()
				logger.Warn().Err(err).
					Str("submission_id", submission.ID).
					Msg("regrade of submission failed")
				return nil
			}
			updated.Add(1)
			observability.RegradeItems().WithLabelValues("updated").Inc()
			return nil
		})
	}
	_ = g.Wait()

	if cancelErr == nil && abandoned.Load() > 0 {
		cancelErr = ctx.Err()
	}

	if skipped > 0 {
		observability.RegradeItems().WithLabelValues("skipped").Add(float64(skipped))
	}

	resp := dto.RegradeResponse{
		Success:      cancelErr == nil,
		UpdatedCount: int(updated.Load()),
		FailedCount:  int(failed.Load()),
		SkippedCount: skipped,
		Total:        len(targets) + skipped,
	}

	span.SetAttributes(
		attribute.Int("updated", resp.UpdatedCount),
		attribute.Int("failed", resp.FailedCount),
	)

	logger.Info().
		Int("updated", resp.UpdatedCount).
		Int("failed", resp.FailedCount).
		Int("skipped", resp.SkippedCount).
		Bool("cancelled", cancelErr != nil).
		Msg("regrade finished")

	// Detached so an aborted batch still leaves an audit trail.
	auditCtx := context.WithoutCancel(ctx)
	recordActivity(auditCtx, s.activity, logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityProblemRegraded,
		EntityType: "problem",
		EntityID:   problem.ID,
		Metadata: map[string]interface{}{
			"updated":   resp.UpdatedCount,
			"failed":    resp.FailedCount,
			"skipped":   resp.SkippedCount,
			"selected":  !req.All,
			"cancelled": cancelErr != nil,
		},
	})
	publishEvent(auditCtx, s.events, logger, GradingEvent{
		Type:      EventRegradeCompleted,
		ProblemID: problem.ID,
		Data: map[string]any{
			"updatedCount": resp.UpdatedCount,
			"failedCount":  resp.FailedCount,
		},
	})

	if cancelErr != nil {
		span.SetStatus(codes.Error, "cancelled")
		return resp, cancelErr
	}
	return resp, nil
}

type regradeBatch struct {
	problem   models.Problem
	all       []models.Submission
	reference *grading.ReferenceExample
}

func (s *regradeService) regradeOne(ctx context.Context, batch regradeBatch, submission models.Submission) error {
	update := repository.GradingUpdate{}

	switch batch.problem.Type {
	case models.ProblemTypeEssay:
		essay := submission.EssayText()
		if essay == "" {
			return ErrEmptySubmission
		}
		outcome, err := gradeEssayWithSimilarity(ctx, s.grader, s.logger, batch.problem, essay,
			batch.reference, grading.EssayCorpus(batch.all, submission.ID))
		if err != nil {
			return err
		}
		update.Feedback = outcome.feedback
		update.SimilarityCheck = outcome.similarity

	case models.ProblemTypeReadingComprehension:
		if !hasAnswer(submission.Answers) {
			return ErrEmptySubmission
		}
		feedback, err := s.grader.GradeReadingComprehension(ctx, batch.problem, submission.Answers)
		if err != nil {
			return err
		}
		update.Feedback = feedback

	default:
		return wrapf(ErrWrongProblemType, "unknown problem type %q", batch.problem.Type)
	}

	// A nil TeacherEditedAt clears the provenance: the feedback is AI output again.
	_, err := s.submissions.UpdateGrading(ctx, submission.ID, update)
	return err
}

// selectForRegrade restricts the submissions to the requested ids, keeping
// storage order. Ids that do not belong to the problem are ignored.
func selectForRegrade(all []models.Submission, req dto.RegradeRequest) ([]models.Submission, int) {
	var wanted map[string]struct{}
	if !req.All {
		wanted = make(map[string]struct{}, len(req.SubmissionIDs))
		for _, id := range req.SubmissionIDs {
			wanted[strings.TrimSpace(id)] = struct{}{}
		}
	}

	targets := make([]models.Submission, 0, len(all))
	skipped := 0
	for _, submission := range all {
		if wanted != nil {
			if _, ok := wanted[submission.ID]; !ok {
				continue
			}
		}
		if req.ExcludeTeacherEdited && submission.IsTeacherEdited() {
			skipped++
			continue
		}
		targets = append(targets, submission)
	}
	return targets, skipped
}
