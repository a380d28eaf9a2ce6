package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type testStore struct {
	db          *gorm.DB
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	activity    repository.ActivityLogRepository
}

func setupStore(t *testing.T) testStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Problem{}, &models.Submission{}, &models.ActivityLog{}))

	return testStore{
		db:          db,
		problems:    repository.NewProblemRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		activity:    repository.NewActivityLogRepository(db),
	}
}

func (s testStore) essayProblem(t *testing.T) models.Problem {
	t.Helper()
	problem := models.Problem{
		Title:  "Describe your town",
		Type:   models.ProblemTypeEssay,
		Prompt: "Write about the town you grew up in.",
		RubricItems: []models.RubricItem{
			{ID: "r1", Criterion: "Content", MaxScore: 6},
			{ID: "r2", Criterion: "Language", MaxScore: 4},
		},
		CreatedBy: "teacher-1",
	}
	require.NoError(t, s.problems.Create(context.Background(), &problem))
	return problem
}

func (s testStore) readingProblem(t *testing.T) models.Problem {
	t.Helper()
	problem := models.Problem{
		Title:   "The river",
		Type:    models.ProblemTypeReadingComprehension,
		Passage: "The river ran through the valley.",
		Questions: []models.Question{
			{
				ID:              "q1",
				QuestionText:    "Where does the river run?",
				QuestionType:    models.QuestionTypeMultipleChoice,
				Options:         []models.QuestionOption{{ID: "optA", Text: "Valley"}, {ID: "optB", Text: "Desert"}},
				CorrectOptionID: "optA",
				MaxScore:        1,
			},
			{
				ID:              "q2",
				QuestionText:    "What is the theme?",
				QuestionType:    models.QuestionTypeShortAnswer,
				MaxScore:        2,
				GradingCriteria: "must mention nature",
			},
		},
		CreatedBy: "teacher-1",
	}
	require.NoError(t, s.problems.Create(context.Background(), &problem))
	return problem
}

func (s testStore) essaySubmission(t *testing.T, problemID, essay string) models.Submission {
	t.Helper()
	submission := models.Submission{
		ProblemID:   problemID,
		SubmitterID: "student-" + essay,
		Essay:       &essay,
		Feedback:    models.Feedback{TotalScore: 5, MaxScore: 10},
	}
	require.NoError(t, s.submissions.Create(context.Background(), &submission))
	return submission
}

var errGraderFailed = errors.New("grader failed")

// fakeGrader scores essays by length and fails on essays listed in failOn.
type fakeGrader struct {
	mu          sync.Mutex
	failOn      map[string]bool
	essayInputs []grading.EssayInput
	distributed []models.Answer
	imageText   string
	imageErr    error
	similarity  error
	inFlight    int
	maxInFlight int
	block       chan struct{}
	afterGrade  func(essay string)
}

func (g *fakeGrader) GradeEssay(ctx context.Context, input grading.EssayInput) (models.Feedback, error) {
	g.mu.Lock()
	g.essayInputs = append(g.essayInputs, input)
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	block := g.block
	fail := g.failOn[input.Essay]
	g.mu.Unlock()

	if block != nil {
		<-block
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if g.afterGrade != nil {
		g.afterGrade(input.Essay)
	}
	if fail {
		return models.Feedback{}, errGraderFailed
	}
	return models.Feedback{
		DetailedFeedback: []models.DetailedFeedbackItem{
			{Criterion: "Content", Score: 5, Feedback: "Clear."},
			{Criterion: "Language", Score: 3, Feedback: "Fluent."},
		},
		TotalScore: 8,
		MaxScore:   input.MaxScore(),
	}, nil
}

func (g *fakeGrader) GradeReadingComprehension(ctx context.Context, problem models.Problem, answers []models.Answer) (models.Feedback, error) {
	feedback := models.Feedback{}
	for _, question := range problem.Questions {
		feedback.DetailedFeedback = append(feedback.DetailedFeedback, models.DetailedFeedbackItem{
			Criterion:  question.QuestionText,
			QuestionID: question.ID,
			Score:      question.EffectiveMaxScore(),
		})
		feedback.TotalScore += question.EffectiveMaxScore()
		feedback.MaxScore += question.EffectiveMaxScore()
	}
	return feedback, nil
}

func (g *fakeGrader) DistributeAnswers(ctx context.Context, raw string, questions []models.Question) ([]models.Answer, error) {
	return g.distributed, nil
}

func (g *fakeGrader) CheckSimilarity(ctx context.Context, essay string, corpus []string) (models.SimilarityCheckResult, error) {
	if g.similarity != nil {
		return models.SimilarityCheckResult{}, g.similarity
	}
	return models.SimilarityCheckResult{SimilarityPercentage: 12, Explanation: "Distinct.", MostSimilarEssayIndex: len(corpus) - 1}, nil
}

func (g *fakeGrader) ParseRubric(ctx context.Context, rawRubric string) ([]models.RubricItem, error) {
	return []models.RubricItem{{ID: "r1", Criterion: rawRubric, MaxScore: 10}}, nil
}

func (g *fakeGrader) SmartExtractProblem(ctx context.Context, source grading.SourceMaterial) (grading.ProblemDraft, error) {
	return grading.ProblemDraft{Type: models.ProblemTypeEssay, Title: "Draft"}, nil
}

func (g *fakeGrader) ExtractReadingComprehension(ctx context.Context, source grading.SourceMaterial) (grading.ReadingDraft, error) {
	return grading.ReadingDraft{}, nil
}

func (g *fakeGrader) ImageToText(ctx context.Context, mimeType string, data []byte) (string, error) {
	return g.imageText, g.imageErr
}

func (g *fakeGrader) TestConnection(ctx context.Context) grading.ConnectionStatus {
	return grading.ConnectionStatus{Success: true, Provider: "fake"}
}

func (g *fakeGrader) gradedEssays() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	essays := make([]string, 0, len(g.essayInputs))
	for _, input := range g.essayInputs {
		essays = append(essays, input.Essay)
	}
	return essays
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GradingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event GradingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}
