package grading

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kurid3v/AVinci/internal/models"
)

// EssayInput carries everything the essay grader needs.
type EssayInput struct {
	Prompt         string
	Essay          string
	RubricItems    []models.RubricItem
	RawRubric      string
	CustomMaxScore float64
	Reference      *ReferenceExample
}

// MaxScore is the target scale, defaulting to 10.
func (in EssayInput) MaxScore() float64 {
	if in.CustomMaxScore > 0 {
		return in.CustomMaxScore
	}
	return models.DefaultEssayMaxScore
}

// EssayInputFor builds the grading input of an essay submission to problem.
func EssayInputFor(problem models.Problem, essay string, reference *ReferenceExample) EssayInput {
	return EssayInput{
		Prompt:         problem.Prompt,
		Essay:          essay,
		RubricItems:    problem.RubricItems,
		RawRubric:      problem.RawRubric,
		CustomMaxScore: problem.MaxScoreTarget(),
		Reference:      reference,
	}
}

// GradeEssay grades one essay against its rubric.
func (e *Engine) GradeEssay(ctx context.Context, input EssayInput) (fb models.Feedback, err error) {
	ctx, span := e.startSpan(ctx, "grading.essay",
		attribute.Int("rubric_items", len(input.RubricItems)),
		attribute.Bool("reference", input.Reference != nil),
	)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.Essay) == "" {
		return models.Feedback{}, invalidInput("essay is empty")
	}

	fb, err = invoke[models.Feedback](ctx, e, invocation{
		contract: contractGradingResult,
		system:   essaySystemInstruction,
		prompt:   buildEssayPrompt(input),
	})
	if err != nil {
		return models.Feedback{}, err
	}

	fb = e.sanitizer.Feedback(fb)
	return FinalizeEssayFeedback(fb, input.RubricItems, input.MaxScore()), nil
}
