package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
)

// ProblemService manages assignments.
type ProblemService interface {
	Create(ctx context.Context, req dto.ProblemRequest, actor Actor) (models.Problem, error)
	Get(ctx context.Context, id string) (models.Problem, error)
	List(ctx context.Context, req dto.ProblemListRequest) (dto.ProblemListResponse, error)
	Update(ctx context.Context, id string, req dto.ProblemRequest, actor Actor) (models.Problem, error)
	Delete(ctx context.Context, id string, actor Actor) error
}

type problemService struct {
	repo      repository.ProblemRepository
	validator *validator.Validate
	activity  ActivityRecorder
	sanitizer *grading.Sanitizer
	logger    zerolog.Logger
}

// NewProblemService constructs the problem service.
func NewProblemService(repo repository.ProblemRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ProblemService {
	return &problemService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		sanitizer: grading.NewSanitizer(),
		logger:    logger.With().Str("component", "problem_service").Logger(),
	}
}

func (s *problemService) Create(ctx context.Context, req dto.ProblemRequest, actor Actor) (models.Problem, error) {
	problem, err := s.build(req)
	if err != nil {
		return models.Problem{}, err
	}
	problem.CreatedBy = actor.ID

	if err := s.repo.Create(ctx, &problem); err != nil {
		return models.Problem{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityProblemCreated,
		EntityType: "problem",
		EntityID:   problem.ID,
		Metadata:   map[string]interface{}{"type": problem.Type},
	})
	return problem, nil
}

func (s *problemService) Get(ctx context.Context, id string) (models.Problem, error) {
	problem, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Problem{}, notFound(err, ErrProblemNotFound)
	}
	return problem, nil
}

func (s *problemService) List(ctx context.Context, req dto.ProblemListRequest) (dto.ProblemListResponse, error) {
	problems, total, err := s.repo.List(ctx, repository.ProblemFilter{
		Type:     models.ProblemType(strings.TrimSpace(req.Type)),
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return dto.ProblemListResponse{}, err
	}
	if problems == nil {
		problems = []models.Problem{}
	}

	return dto.ProblemListResponse{
		Items:      problems,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *problemService) Update(ctx context.Context, id string, req dto.ProblemRequest, actor Actor) (models.Problem, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return models.Problem{}, err
	}

	problem, err := s.build(req)
	if err != nil {
		return models.Problem{}, err
	}
	problem.ID = existing.ID
	problem.CreatedBy = existing.CreatedBy
	problem.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, &problem); err != nil {
		return models.Problem{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityProblemUpdated,
		EntityType: "problem",
		EntityID:   problem.ID,
	})
	return problem, nil
}

func (s *problemService) Delete(ctx context.Context, id string, actor Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, ErrProblemNotFound)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActivityProblemDeleted,
		EntityType: "problem",
		EntityID:   id,
	})
	return nil
}

func (s *problemService) build(req dto.ProblemRequest) (models.Problem, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Problem{}, err
	}

	problem := models.Problem{
		Title:          s.sanitizer.Text(req.Title),
		Type:           models.ProblemType(req.Type),
		Prompt:         strings.TrimSpace(req.Prompt),
		Passage:        strings.TrimSpace(req.Passage),
		RawRubric:      strings.TrimSpace(req.RawRubric),
		CustomMaxScore: req.CustomMaxScore,
	}

	for _, item := range req.RubricItems {
		problem.RubricItems = append(problem.RubricItems, models.RubricItem{
			ID:        item.ID,
			Criterion: strings.TrimSpace(item.Criterion),
			MaxScore:  item.MaxScore,
		})
	}

	for _, q := range req.Questions {
		question := models.Question{
			ID:              q.ID,
			QuestionText:    strings.TrimSpace(q.QuestionText),
			QuestionType:    models.QuestionType(q.QuestionType),
			CorrectOptionID: q.CorrectOptionID,
			MaxScore:        q.MaxScore,
			GradingCriteria: strings.TrimSpace(q.GradingCriteria),
		}
		for _, option := range q.Options {
			question.Options = append(question.Options, models.QuestionOption{
				ID:        option.ID,
				Text:      strings.TrimSpace(option.Text),
				IsCorrect: option.IsCorrect,
			})
		}
		problem.Questions = append(problem.Questions, grading.AssignQuestionIDs(question))
	}

	if err := validateProblem(problem); err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func validateProblem(problem models.Problem) error {
	switch problem.Type {
	case models.ProblemTypeEssay:
		if problem.Prompt == "" {
			return wrapf(ErrInvalidProblem, "essay prompt is required")
		}
		if len(problem.Questions) > 0 {
			return wrapf(ErrInvalidProblem, "essay problems cannot have questions")
		}
	case models.ProblemTypeReadingComprehension:
		if problem.Passage == "" {
			return wrapf(ErrInvalidProblem, "reading passage is required")
		}
		if len(problem.Questions) == 0 {
			return wrapf(ErrInvalidProblem, "at least one question is required")
		}
		seen := make(map[string]struct{}, len(problem.Questions))
		for i, question := range problem.Questions {
			if _, dup := seen[question.ID]; dup {
				return wrapf(ErrInvalidProblem, "duplicate question id %s", question.ID)
			}
			seen[question.ID] = struct{}{}

			if question.QuestionType != models.QuestionTypeMultipleChoice {
				continue
			}
			if len(question.Options) < 2 {
				return wrapf(ErrInvalidProblem, "question %d needs at least two options", i+1)
			}
			if optionText(question, question.CorrectOptionID) == "" {
				return wrapf(ErrInvalidProblem, "question %d has no valid correct option", i+1)
			}
		}
	}
	return nil
}

func optionText(question models.Question, optionID string) string {
	if optionID == "" {
		return ""
	}
	for _, option := range question.Options {
		if option.ID == optionID {
			return option.Text
		}
	}
	return ""
}
