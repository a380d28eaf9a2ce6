package grading

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/pkg/ai"
)

// SourceMaterial is the raw teaching material an extraction works from.
type SourceMaterial struct {
	Text   string
	Images []ai.Part
}

func (s SourceMaterial) empty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Images) == 0
}

// EssayDraft is the essay part of an extracted problem.
type EssayDraft struct {
	Prompt         string              `json:"prompt"`
	RawRubric      string              `json:"rawRubric,omitempty"`
	RubricItems    []models.RubricItem `json:"rubricItems,omitempty"`
	CustomMaxScore *float64            `json:"customMaxScore,omitempty"`
}

// ReadingDraft is an extracted reading comprehension set.
type ReadingDraft struct {
	Passage   string            `json:"passage"`
	Questions []models.Question `json:"questions"`
}

// ProblemDraft is an extracted problem ready to be reviewed by a teacher.
type ProblemDraft struct {
	Type            models.ProblemType `json:"type"`
	Title           string             `json:"title"`
	EssayData       *EssayDraft        `json:"essayData,omitempty"`
	ReadingCompData *ReadingDraft      `json:"readingCompData,omitempty"`
}

// ParseRubric turns a free-text rubric into structured items.
func (e *Engine) ParseRubric(ctx context.Context, rawRubric string) (items []models.RubricItem, err error) {
	ctx, span := e.startSpan(ctx, "grading.parse_rubric")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(rawRubric) == "" {
		return nil, invalidInput("rubric text is empty")
	}

	decoded, err := invoke[[]models.RubricItem](ctx, e, invocation{
		contract: contractRubric,
		system:   rubricSystemInstruction,
		prompt:   "## Rubric\n" + rawRubric + "\n\nReturn JSON.",
	})
	if err != nil {
		return nil, err
	}
	return e.cleanRubric(decoded), nil
}

// ExtractReadingComprehension digitises a passage with its questions.
func (e *Engine) ExtractReadingComprehension(ctx context.Context, source SourceMaterial) (draft ReadingDraft, err error) {
	ctx, span := e.startSpan(ctx, "grading.extract_reading", attribute.Int("images", len(source.Images)))
	defer func() { endSpan(span, err) }()

	if source.empty() {
		return ReadingDraft{}, invalidInput("no source material")
	}

	draft, err = invoke[ReadingDraft](ctx, e, invocation{
		contract: contractReadingExtraction,
		system:   extractionSystemInstruction,
		prompt:   buildExtractionPrompt(source, "Extract the reading passage and every question that follows it."),
		parts:    source.Images,
	})
	if err != nil {
		return ReadingDraft{}, err
	}
	return e.cleanReading(draft), nil
}

// SmartExtractProblem detects whether the material is an essay assignment or a
// reading comprehension set and extracts it accordingly.
func (e *Engine) SmartExtractProblem(ctx context.Context, source SourceMaterial) (draft ProblemDraft, err error) {
	ctx, span := e.startSpan(ctx, "grading.smart_extract", attribute.Int("images", len(source.Images)))
	defer func() { endSpan(span, err) }()

	if source.empty() {
		return ProblemDraft{}, invalidInput("no source material")
	}

	draft, err = invoke[ProblemDraft](ctx, e, invocation{
		contract: contractSmartExtraction,
		system:   extractionSystemInstruction,
		prompt: buildExtractionPrompt(source, "Decide whether this is an essay assignment or a reading comprehension exercise. "+
			"Fill essayData for essays or readingCompData for reading comprehension, never both."),
		parts: source.Images,
	})
	if err != nil {
		return ProblemDraft{}, err
	}

	draft.Title = e.sanitizer.Text(draft.Title)
	switch draft.Type {
	case models.ProblemTypeEssay:
		if draft.EssayData == nil {
			return ProblemDraft{}, malformed("essay extraction without essayData")
		}
		draft.ReadingCompData = nil
		draft.EssayData.Prompt = e.sanitizer.Text(draft.EssayData.Prompt)
		draft.EssayData.RawRubric = e.sanitizer.Text(draft.EssayData.RawRubric)
		draft.EssayData.RubricItems = e.cleanRubric(draft.EssayData.RubricItems)
		if draft.EssayData.CustomMaxScore != nil && *draft.EssayData.CustomMaxScore <= 0 {
			draft.EssayData.CustomMaxScore = nil
		}
	case models.ProblemTypeReadingComprehension:
		if draft.ReadingCompData == nil {
			return ProblemDraft{}, malformed("reading extraction without readingCompData")
		}
		draft.EssayData = nil
		reading := e.cleanReading(*draft.ReadingCompData)
		draft.ReadingCompData = &reading
	}
	return draft, nil
}

func (e *Engine) cleanRubric(items []models.RubricItem) []models.RubricItem {
	cleaned := make([]models.RubricItem, 0, len(items))
	for _, item := range items {
		item.Criterion = e.sanitizer.Text(item.Criterion)
		if item.Criterion == "" {
			continue
		}
		if item.MaxScore < 0 {
			item.MaxScore = 0
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		cleaned = append(cleaned, item)
	}
	return cleaned
}

func (e *Engine) cleanReading(draft ReadingDraft) ReadingDraft {
	draft.Passage = e.sanitizer.Text(draft.Passage)
	questions := make([]models.Question, 0, len(draft.Questions))
	for _, question := range draft.Questions {
		question.QuestionText = e.sanitizer.Text(question.QuestionText)
		if question.QuestionText == "" {
			continue
		}
		questions = append(questions, AssignQuestionIDs(question))
	}
	draft.Questions = questions
	return draft
}

// AssignQuestionIDs fills missing question and option ids and derives the
// correct option id from the isCorrect flags when it is not set.
func AssignQuestionIDs(question models.Question) models.Question {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if question.QuestionType != models.QuestionTypeMultipleChoice {
		question.Options = nil
		question.CorrectOptionID = ""
		return question
	}

	options := make([]models.QuestionOption, len(question.Options))
	for i, option := range question.Options {
		if option.ID == "" {
			option.ID = uuid.NewString()
		}
		options[i] = option
	}
	question.Options = options
	question.CorrectOptionID = question.CorrectOption()
	return question
}
