package service

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	applogger "github.com/kurid3v/AVinci/internal/logger"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
	"github.com/kurid3v/AVinci/pkg/ai"
)

// Grader is the AI grading core. *grading.Engine implements it.
type Grader interface {
	GradeEssay(ctx context.Context, input grading.EssayInput) (models.Feedback, error)
	GradeReadingComprehension(ctx context.Context, problem models.Problem, answers []models.Answer) (models.Feedback, error)
	DistributeAnswers(ctx context.Context, raw string, questions []models.Question) ([]models.Answer, error)
	CheckSimilarity(ctx context.Context, essay string, corpus []string) (models.SimilarityCheckResult, error)
	ParseRubric(ctx context.Context, rawRubric string) ([]models.RubricItem, error)
	SmartExtractProblem(ctx context.Context, source grading.SourceMaterial) (grading.ProblemDraft, error)
	ExtractReadingComprehension(ctx context.Context, source grading.SourceMaterial) (grading.ReadingDraft, error)
	ImageToText(ctx context.Context, mimeType string, data []byte) (string, error)
	TestConnection(ctx context.Context) grading.ConnectionStatus
}

// GradingService exposes grading operations that do not persist submissions.
type GradingService interface {
	GradeEssay(ctx context.Context, req dto.GradeEssayRequest) (dto.GradeEssayResponse, error)
	GradeReading(ctx context.Context, req dto.GradeReadingRequest) (models.Feedback, error)
	DistributeAnswers(ctx context.Context, req dto.DistributeAnswersRequest) (dto.DistributeAnswersResponse, error)
	ParseRubric(ctx context.Context, req dto.ParseRubricRequest) ([]models.RubricItem, error)
	SmartExtract(ctx context.Context, req dto.ExtractRequest) (grading.ProblemDraft, error)
	ExtractReading(ctx context.Context, req dto.ExtractRequest) (grading.ReadingDraft, error)
	ImageToText(ctx context.Context, req dto.ImageToTextRequest) (string, error)
	TestConnection(ctx context.Context) grading.ConnectionStatus
}

type gradingService struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	grader      Grader
	validator   *validator.Validate
	maxImage    int64
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewGradingService constructs the grading service.
func NewGradingService(problems repository.ProblemRepository, submissions repository.SubmissionRepository, grader Grader, validate *validator.Validate, maxImageBytes int64, logger zerolog.Logger) GradingService {
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxScanBytes
	}
	return &gradingService{
		problems:    problems,
		submissions: submissions,
		grader:      grader,
		validator:   validate,
		maxImage:    maxImageBytes,
		tracer:      otel.Tracer("github.com/kurid3v/AVinci/internal/service/grading"),
		logger:      logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) GradeEssay(ctx context.Context, req dto.GradeEssayRequest) (dto.GradeEssayResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GradeEssayResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.essay_request", trace.WithAttributes(attribute.String("problem_id", req.ProblemID)))
	defer span.End()

	problem, err := s.loadProblem(ctx, req.ProblemID, models.ProblemTypeEssay)
	if err != nil {
		return dto.GradeEssayResponse{}, err
	}

	existing, err := s.submissions.ListByProblem(ctx, problem.ID)
	if err != nil {
		return dto.GradeEssayResponse{}, err
	}

	outcome, err := gradeEssayWithSimilarity(ctx, s.grader, s.logger, problem, req.Essay,
		grading.SelectReferenceExample(existing), grading.EssayCorpus(existing, ""))
	if err != nil {
		return dto.GradeEssayResponse{}, err
	}

	return dto.GradeEssayResponse{Feedback: outcome.feedback, SimilarityCheck: outcome.similarity}, nil
}

func (s *gradingService) GradeReading(ctx context.Context, req dto.GradeReadingRequest) (models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Feedback{}, err
	}

	problem, err := s.loadProblem(ctx, req.ProblemID, models.ProblemTypeReadingComprehension)
	if err != nil {
		return models.Feedback{}, err
	}

	return s.grader.GradeReadingComprehension(ctx, problem, req.Answers)
}

func (s *gradingService) DistributeAnswers(ctx context.Context, req dto.DistributeAnswersRequest) (dto.DistributeAnswersResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.DistributeAnswersResponse{}, err
	}

	problem, err := s.loadProblem(ctx, req.ProblemID, models.ProblemTypeReadingComprehension)
	if err != nil {
		return dto.DistributeAnswersResponse{}, err
	}

	answers, err := s.grader.DistributeAnswers(ctx, req.RawText, problem.Questions)
	if err != nil {
		return dto.DistributeAnswersResponse{}, err
	}

	return dto.DistributeAnswersResponse{
		Answers: answers,
		Merged:  grading.MergeAnswers(req.ExistingAnswers, answers),
	}, nil
}

func (s *gradingService) ParseRubric(ctx context.Context, req dto.ParseRubricRequest) ([]models.RubricItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	return s.grader.ParseRubric(ctx, req.RawRubric)
}

func (s *gradingService) SmartExtract(ctx context.Context, req dto.ExtractRequest) (grading.ProblemDraft, error) {
	source, err := s.sourceMaterial(req)
	if err != nil {
		return grading.ProblemDraft{}, err
	}
	return s.grader.SmartExtractProblem(ctx, source)
}

func (s *gradingService) ExtractReading(ctx context.Context, req dto.ExtractRequest) (grading.ReadingDraft, error) {
	source, err := s.sourceMaterial(req)
	if err != nil {
		return grading.ReadingDraft{}, err
	}
	return s.grader.ExtractReadingComprehension(ctx, source)
}

func (s *gradingService) ImageToText(ctx context.Context, req dto.ImageToTextRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", err
	}

	part, err := decodeInlineImage(dto.InlineImage{MimeType: req.MimeType, Data: req.Data}, s.maxImage)
	if err != nil {
		return "", err
	}
	return s.grader.ImageToText(ctx, part.MIMEType, part.Data)
}

func (s *gradingService) TestConnection(ctx context.Context) grading.ConnectionStatus {
	return s.grader.TestConnection(ctx)
}

func (s *gradingService) loadProblem(ctx context.Context, id string, want models.ProblemType) (models.Problem, error) {
	problem, err := s.problems.GetByID(ctx, id)
	if err != nil {
		return models.Problem{}, notFound(err, ErrProblemNotFound)
	}
	if problem.Type != want {
		return models.Problem{}, wrapf(ErrWrongProblemType, "problem %s is %s", problem.ID, problem.Type)
	}
	return problem, nil
}

func (s *gradingService) sourceMaterial(req dto.ExtractRequest) (grading.SourceMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return grading.SourceMaterial{}, err
	}

	source := grading.SourceMaterial{Text: req.Text}
	for _, image := range req.Images {
		part, err := decodeInlineImage(image, s.maxImage)
		if err != nil {
			return grading.SourceMaterial{}, err
		}
		source.Images = append(source.Images, part)
	}
	return source, nil
}

type essayOutcome struct {
	feedback   models.Feedback
	similarity *models.SimilarityCheckResult
}

// gradeEssayWithSimilarity runs essay grading and the similarity check
// concurrently. A failed similarity check is logged and leaves the result
// without one; a failed grading fails the whole operation.
func gradeEssayWithSimilarity(ctx context.Context, grader Grader, logger zerolog.Logger, problem models.Problem, essay string, reference *grading.ReferenceExample, corpus []string) (essayOutcome, error) {
	var outcome essayOutcome
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		feedback, err := grader.GradeEssay(gctx, grading.EssayInputFor(problem, essay, reference))
		if err != nil {
			return err
		}
		outcome.feedback = feedback
		return nil
	})

	g.Go(func() error {
		result, err := grader.CheckSimilarity(gctx, essay, corpus)
		if err != nil {
			ctxLogger := applogger.ForContext(ctx, logger)
			ctxLogger.Warn().Err(err).
				Str("problem_id", problem.ID).
				Msg("similarity check failed")
			return nil
		}
		outcome.similarity = &result
		return nil
	})

	if err := g.Wait(); err != nil {
		return essayOutcome{}, err
	}
	return outcome, nil
}

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/heic": {},
	"image/heif": {},
}

func isAllowedImage(mime string) bool {
	_, ok := allowedImageTypes[normalizeMime(mime)]
	return ok
}

func normalizeMime(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// decodeInlineImage decodes a base64 image and checks its real type against
// the allowlist. The declared type is only trusted when sniffing is inconclusive.
func decodeInlineImage(image dto.InlineImage, maxBytes int64) (ai.Part, error) {
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		return ai.Part{}, wrapf(ErrScanTypeNotAllowed, "image is not valid base64")
	}
	if int64(len(data)) > maxBytes {
		return ai.Part{}, ErrScanTooLarge
	}

	detected := normalizeMime(mimetype.Detect(data).String())
	if !isAllowedImage(detected) {
		declared := normalizeMime(image.MimeType)
		if detected != "application/octet-stream" || !isAllowedImage(declared) {
			return ai.Part{}, ErrScanTypeNotAllowed
		}
		detected = declared
	}
	return ai.Part{MIMEType: detected, Data: data}, nil
}
