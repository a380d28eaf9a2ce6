package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
)

const (
	// similarityFlagThreshold marks essays worth a manual plagiarism review.
	similarityFlagThreshold = 50.0
	recentSubmissionLimit   = 5
)

// ProblemSummaryService produces aggregated grading statistics per problem.
type ProblemSummaryService interface {
	GetSummary(ctx context.Context, problemID string) (dto.ProblemSummaryResponse, error)
}

type problemSummaryService struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewProblemSummaryService builds the summary aggregator. cache may be nil.
func NewProblemSummaryService(problems repository.ProblemRepository, submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProblemSummaryService {
	return &problemSummaryService{
		problems:    problems,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "problem_summary_service").Logger(),
		now:         time.Now,
	}
}

func (s *problemSummaryService) GetSummary(ctx context.Context, problemID string) (dto.ProblemSummaryResponse, error) {
	cacheKey := fmt.Sprintf("summary:problem:%s", problemID)

	if s.cache != nil && s.cacheTTL > 0 {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ProblemSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("problem_id", problemID).Msg("summary cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
	}

	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return dto.ProblemSummaryResponse{}, notFound(err, ErrProblemNotFound)
	}

	submissions, err := s.submissions.ListByProblem(ctx, problem.ID)
	if err != nil {
		return dto.ProblemSummaryResponse{}, err
	}

	response := s.buildResponse(problem, submissions)

	if s.cache != nil && s.cacheTTL > 0 {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store summary cache")
			}
		}
	}

	return response, nil
}

func (s *problemSummaryService) buildResponse(problem models.Problem, submissions []models.Submission) dto.ProblemSummaryResponse {
	response := dto.ProblemSummaryResponse{
		ProblemID:       problem.ID,
		Title:           problem.Title,
		Type:            problem.Type,
		SubmissionCount: len(submissions),
		MaxScore:        problemMaxScore(problem),
		Criteria:        []dto.CriterionAverage{},
		Recent:          make([]dto.SubmissionDigest, 0, recentSubmissionLimit),
		GeneratedAt:     s.now().UTC(),
	}

	type criterionTotals struct {
		average dto.CriterionAverage
		sum     float64
	}
	order := make([]string, 0)
	totals := map[string]*criterionTotals{}

	var scoreSum float64
	for i, submission := range submissions {
		total := submission.Feedback.TotalScore
		scoreSum += total
		if i == 0 || total > response.HighestScore {
			response.HighestScore = total
		}
		if i == 0 || total < response.LowestScore {
			response.LowestScore = total
		}
		if submission.IsTeacherEdited() {
			response.TeacherEditedCount++
		}
		if check := submission.SimilarityCheck; check != nil && check.SimilarityPercentage >= similarityFlagThreshold {
			response.SimilarityFlagged++
		}

		for idx, item := range submission.Feedback.DetailedFeedback {
			key := criterionKey(item)
			entry, ok := totals[key]
			if !ok {
				entry = &criterionTotals{average: dto.CriterionAverage{
					Key:       key,
					Criterion: item.Criterion,
					MaxScore:  itemMaxScore(problem, item, idx),
				}}
				totals[key] = entry
				order = append(order, key)
			}
			entry.sum += item.Score
			entry.average.Count++
		}
	}

	if len(submissions) > 0 {
		response.AverageScore = grading.Round2(scoreSum / float64(len(submissions)))
	}

	for _, key := range order {
		entry := totals[key]
		entry.average.AverageScore = grading.Round2(entry.sum / float64(entry.average.Count))
		response.Criteria = append(response.Criteria, entry.average)
	}

	for i := len(submissions) - 1; i >= 0 && len(response.Recent) < recentSubmissionLimit; i-- {
		submission := submissions[i]
		response.Recent = append(response.Recent, dto.SubmissionDigest{
			SubmissionID:  submission.ID,
			SubmitterID:   submission.SubmitterID,
			TotalScore:    submission.Feedback.TotalScore,
			MaxScore:      submission.Feedback.MaxScore,
			TeacherEdited: submission.IsTeacherEdited(),
			SubmittedAt:   submission.SubmittedAt,
		})
	}

	return response
}

func criterionKey(item models.DetailedFeedbackItem) string {
	if item.QuestionID != "" {
		return item.QuestionID
	}
	return strings.ToLower(strings.TrimSpace(item.Criterion))
}

func problemMaxScore(problem models.Problem) float64 {
	if problem.IsEssay() {
		return problem.MaxScoreTarget()
	}
	var total float64
	for _, question := range problem.Questions {
		total += question.EffectiveMaxScore()
	}
	return total
}

func itemMaxScore(problem models.Problem, item models.DetailedFeedbackItem, index int) float64 {
	return criterionLimit(problem, dto.FeedbackItemRequest{Criterion: item.Criterion, QuestionID: item.QuestionID}, index)
}
