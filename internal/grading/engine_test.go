package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/pkg/ai"
)

const essayResponse = "```json\n" + `{
  "detailedFeedback": [
    {"criterion": "Ideas", "score": 6, "feedback": "<p>Clear thesis.</p>"},
    {"criterion": "Organisation", "score": 3, "feedback": "Paragraphs flow.", "questionId": null}
  ],
  "totalScore": 9,
  "maxScore": 8,
  "generalSuggestions": ["Add a counter-argument.", ""]
}` + "\n```"

func TestGradeEssayClampsAndRescales(t *testing.T) {
	client := &stubClient{responses: []string{essayResponse}}
	engine := newTestEngine(t, client)

	fb, err := engine.GradeEssay(context.Background(), EssayInput{
		Prompt: "Discuss homework.",
		Essay:  "Homework is useful because...",
		RubricItems: []models.RubricItem{
			{Criterion: "Ideas", MaxScore: 4},
			{Criterion: "Organisation", MaxScore: 4},
		},
		CustomMaxScore: 10,
	})
	require.NoError(t, err)

	require.Equal(t, 4.0, fb.DetailedFeedback[0].Score)
	require.Equal(t, "Clear thesis.", fb.DetailedFeedback[0].Feedback)
	require.Equal(t, 3.0, fb.DetailedFeedback[1].Score)
	require.Equal(t, 8.75, fb.TotalScore)
	require.Equal(t, 10.0, fb.MaxScore)
	require.Equal(t, []string{"Add a counter-argument."}, fb.GeneralSuggestions)

	require.Len(t, client.requests, 1)
	require.NotNil(t, client.requests[0].Schema)
	require.Equal(t, ai.TypeObject, client.requests[0].Schema.Type)
}

func TestGradeEssayPromptCarriesReferenceGuard(t *testing.T) {
	client := &stubClient{responses: []string{essayResponse}}
	engine := newTestEngine(t, client)

	_, err := engine.GradeEssay(context.Background(), EssayInput{
		Prompt:    "Discuss homework.",
		Essay:     "My essay.",
		RawRubric: "Ideas 4, Organisation 4",
		Reference: &ReferenceExample{Essay: "Reference essay text", Feedback: models.Feedback{TotalScore: 9}},
	})
	require.NoError(t, err)

	prompt := client.requests[0].Prompt
	require.Contains(t, prompt, "Reference essay text")
	require.Contains(t, prompt, "do not inflate scores")
	require.Contains(t, prompt, "Ideas 4, Organisation 4")
}

func TestGradeEssayWithoutClientIsConfigurationError(t *testing.T) {
	engine := newTestEngine(t, nil)

	_, err := engine.GradeEssay(context.Background(), EssayInput{Essay: "text"})
	require.ErrorIs(t, err, ErrConfiguration)
	require.False(t, engine.Configured())
}

func TestGradeEssayMalformedOutputIsNotRetried(t *testing.T) {
	client := &stubClient{responses: []string{"I am unable to grade this essay."}}
	engine := newTestEngine(t, client)

	_, err := engine.GradeEssay(context.Background(), EssayInput{Essay: "text"})
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Equal(t, 1, client.calls())
}

func TestGradeEssayRejectsContractViolations(t *testing.T) {
	client := &stubClient{responses: []string{`{"detailedFeedback": [], "totalScore": 1}`}}
	engine := newTestEngine(t, client)

	_, err := engine.GradeEssay(context.Background(), EssayInput{Essay: "text"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGradeEssayRetriesTransientFailures(t *testing.T) {
	overloaded := &ai.Error{Provider: "stub", Code: ai.CodeUnavailable, Status: 503, Err: errors.New("overloaded")}
	client := &stubClient{
		errs:      []error{overloaded, overloaded},
		responses: []string{"", "", essayResponse},
	}
	engine := newTestEngine(t, client)

	_, err := engine.GradeEssay(context.Background(), EssayInput{Essay: "text", CustomMaxScore: 10})
	require.NoError(t, err)
	require.Equal(t, 3, client.calls())
}

func TestGradeEssayMapsRejectedCredentials(t *testing.T) {
	client := &stubClient{errs: []error{&ai.Error{Provider: "stub", Code: ai.CodeConfiguration, Status: 401, Err: errors.New("bad key")}}}
	engine := newTestEngine(t, client)

	_, err := engine.GradeEssay(context.Background(), EssayInput{Essay: "text"})
	require.ErrorIs(t, err, ErrConfiguration)
	require.Equal(t, 1, client.calls())
}

func readingProblem() models.Problem {
	return models.Problem{
		ID:   "p1",
		Type: models.ProblemTypeReadingComprehension,
		Questions: []models.Question{
			{
				ID:              "q1",
				QuestionType:    models.QuestionTypeMultipleChoice,
				QuestionText:    "Pick one",
				Options:         []models.QuestionOption{{ID: "optA", Text: "Alpha"}, {ID: "optB", Text: "Beta"}},
				CorrectOptionID: "optA",
				MaxScore:        1,
			},
			{
				ID:              "q2",
				QuestionType:    models.QuestionTypeShortAnswer,
				QuestionText:    "Explain the theme",
				MaxScore:        2,
				GradingCriteria: "must mention theme X",
			},
		},
	}
}

func TestGradeReadingComprehensionEndToEnd(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"grades": [{"questionId": "q2", "score": 2, "feedback": "Discusses theme X thoroughly."}], "generalSuggestions": []}`,
	}}
	engine := newTestEngine(t, client)

	fb, err := engine.GradeReadingComprehension(context.Background(), readingProblem(), []models.Answer{
		{QuestionID: "q1", SelectedOptionID: "optA"},
		{QuestionID: "q2", WrittenAnswer: "discusses theme X in depth"},
	})
	require.NoError(t, err)

	require.Len(t, fb.DetailedFeedback, 2)
	require.Equal(t, "q1", fb.DetailedFeedback[0].QuestionID)
	require.Equal(t, 1.0, fb.DetailedFeedback[0].Score)
	require.Equal(t, "q2", fb.DetailedFeedback[1].QuestionID)
	require.Equal(t, 2.0, fb.DetailedFeedback[1].Score)
	require.Equal(t, 3.0, fb.TotalScore)
	require.Equal(t, 3.0, fb.MaxScore)
	require.Equal(t, 1, client.calls())
	require.Contains(t, client.requests[0].Prompt, "must mention theme X")
	require.NotContains(t, client.requests[0].Prompt, "Pick one")
}

func TestGradeReadingComprehensionZeroScoresUnanswered(t *testing.T) {
	client := &stubClient{}
	engine := newTestEngine(t, client)

	fb, err := engine.GradeReadingComprehension(context.Background(), readingProblem(), []models.Answer{
		{QuestionID: "q1", SelectedOptionID: "optB"},
	})
	require.NoError(t, err)

	require.Len(t, fb.DetailedFeedback, 2)
	require.Equal(t, 0.0, fb.DetailedFeedback[0].Score)
	require.Contains(t, fb.DetailedFeedback[0].Feedback, "Alpha")
	require.Equal(t, 0.0, fb.DetailedFeedback[1].Score)
	require.Equal(t, noAnswerFeedback, fb.DetailedFeedback[1].Feedback)
	require.Equal(t, 3.0, fb.MaxScore)
	require.Equal(t, 0, client.calls())
}

func TestGradeMultipleChoiceUsesFixedFeedback(t *testing.T) {
	question := readingProblem().Questions[0]

	right, err := gradeMultipleChoice(question, models.Answer{QuestionID: "q1", SelectedOptionID: "optA"})
	require.NoError(t, err)
	require.Equal(t, 1.0, right.Score)
	require.Equal(t, "Correct.", right.Feedback)

	wrong, err := gradeMultipleChoice(question, models.Answer{QuestionID: "q1", SelectedOptionID: "optB"})
	require.NoError(t, err)
	require.Equal(t, 0.0, wrong.Score)
	require.Equal(t, `Incorrect. The correct answer is "Alpha".`, wrong.Feedback)

	question.CorrectOptionID = ""
	question.Options = nil
	_, err = gradeMultipleChoice(question, models.Answer{QuestionID: "q1", SelectedOptionID: "optA"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGradeReadingComprehensionMissingGradeIsMalformed(t *testing.T) {
	client := &stubClient{responses: []string{`{"grades": []}`}}
	engine := newTestEngine(t, client)

	_, err := engine.GradeReadingComprehension(context.Background(), readingProblem(), []models.Answer{
		{QuestionID: "q2", WrittenAnswer: "something"},
	})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGradeReadingComprehensionClampsShortAnswerScore(t *testing.T) {
	client := &stubClient{responses: []string{`{"grades": [{"questionId": "q2", "score": 5, "feedback": "Great"}]}`}}
	engine := newTestEngine(t, client)

	fb, err := engine.GradeReadingComprehension(context.Background(), readingProblem(), []models.Answer{
		{QuestionID: "q2", WrittenAnswer: "something"},
	})
	require.NoError(t, err)
	require.Equal(t, 2.0, fb.DetailedFeedback[1].Score)
	require.Equal(t, 2.0, fb.TotalScore)
}

func TestDistributeAnswersArrayForm(t *testing.T) {
	client := &stubClient{responses: []string{`Sure! [
		{"questionId": "q2", "writtenAnswer": "Theme X is about courage."},
		{"questionId": "q1", "selectedOptionId": "B"},
		{"questionId": "q9", "writtenAnswer": "unknown question"}
	]`}}
	engine := newTestEngine(t, client)

	answers, err := engine.DistributeAnswers(context.Background(), "1. B 2. Theme X is about courage.", readingProblem().Questions)
	require.NoError(t, err)
	require.Equal(t, []models.Answer{
		{QuestionID: "q1", SelectedOptionID: "optB"},
		{QuestionID: "q2", WrittenAnswer: "Theme X is about courage."},
	}, answers)
}

func TestDistributeAnswersAcceptsLegacyMapForm(t *testing.T) {
	client := &stubClient{responses: []string{`{"q1": {"selectedOptionId": "optA"}, "q2": {"writtenAnswer": ""}}`}}
	engine := newTestEngine(t, client)

	answers, err := engine.DistributeAnswers(context.Background(), "1. A", readingProblem().Questions)
	require.NoError(t, err)
	require.Equal(t, []models.Answer{{QuestionID: "q1", SelectedOptionID: "optA"}}, answers)
}

func TestCheckSimilarityEmptyCorpusSkipsModel(t *testing.T) {
	client := &stubClient{}
	engine := newTestEngine(t, client)

	result, err := engine.CheckSimilarity(context.Background(), "essay", nil)
	require.NoError(t, err)
	require.Equal(t, -1, result.MostSimilarEssayIndex)
	require.Zero(t, result.SimilarityPercentage)
	require.Equal(t, 0, client.calls())
}

func TestCheckSimilarityClampsOutput(t *testing.T) {
	client := &stubClient{responses: []string{`{"similarityPercentage": 140, "explanation": "Same structure", "mostSimilarEssayIndex": 7}`}}
	engine := newTestEngine(t, client)

	result, err := engine.CheckSimilarity(context.Background(), "essay", []string{"other"})
	require.NoError(t, err)
	require.Equal(t, 100.0, result.SimilarityPercentage)
	require.Equal(t, -1, result.MostSimilarEssayIndex)
}

func TestParseRubricAssignsIDs(t *testing.T) {
	client := &stubClient{responses: []string{`[{"criterion": "Ideas", "maxScore": 4}, {"criterion": " ", "maxScore": 1}]`}}
	engine := newTestEngine(t, client)

	items, err := engine.ParseRubric(context.Background(), "Ideas: 4 points")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Ideas", items[0].Criterion)
	require.NotEmpty(t, items[0].ID)
}

func TestSmartExtractReadingDerivesCorrectOption(t *testing.T) {
	client := &stubClient{responses: []string{`{
		"type": "reading_comprehension",
		"title": "The Fox",
		"essayData": null,
		"readingCompData": {
			"passage": "A fox ran.",
			"questions": [{
				"questionText": "What ran?",
				"questionType": "multiple_choice",
				"maxScore": 1,
				"options": [{"text": "A dog", "isCorrect": false}, {"text": "A fox", "isCorrect": true}]
			}]
		}
	}`}}
	engine := newTestEngine(t, client)

	draft, err := engine.SmartExtractProblem(context.Background(), SourceMaterial{Text: "A fox ran. What ran? a) A dog b) A fox"})
	require.NoError(t, err)
	require.Equal(t, models.ProblemTypeReadingComprehension, draft.Type)
	require.Nil(t, draft.EssayData)
	require.NotNil(t, draft.ReadingCompData)

	question := draft.ReadingCompData.Questions[0]
	require.NotEmpty(t, question.ID)
	require.Equal(t, question.Options[1].ID, question.CorrectOptionID)
}

func TestImageToTextSendsInlineImage(t *testing.T) {
	client := &stubClient{responses: []string{"  The student wrote this.  "}}
	engine := newTestEngine(t, client)

	text, err := engine.ImageToText(context.Background(), "image/png", []byte{0x89, 0x50})
	require.NoError(t, err)
	require.Equal(t, "The student wrote this.", text)
	require.Len(t, client.requests[0].Parts, 1)
	require.Nil(t, client.requests[0].Schema)
}

func TestTestConnectionReportsProvider(t *testing.T) {
	engine := newTestEngine(t, &stubClient{responses: []string{"pong"}})

	status := engine.TestConnection(context.Background())
	require.True(t, status.Success)
	require.Equal(t, "stub", status.Provider)

	status = newTestEngine(t, nil).TestConnection(context.Background())
	require.False(t, status.Success)
}
