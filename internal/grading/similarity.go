package grading

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kurid3v/AVinci/internal/models"
)

const noCorpusExplanation = "No other essays to compare against."

// CheckSimilarity compares essay with the other essays submitted for the same
// problem. An empty corpus short-circuits without calling the model.
func (e *Engine) CheckSimilarity(ctx context.Context, essay string, corpus []string) (result models.SimilarityCheckResult, err error) {
	if len(corpus) == 0 {
		return models.SimilarityCheckResult{Explanation: noCorpusExplanation, MostSimilarEssayIndex: -1}, nil
	}

	ctx, span := e.startSpan(ctx, "grading.similarity", attribute.Int("corpus", len(corpus)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(essay) == "" {
		return models.SimilarityCheckResult{}, invalidInput("essay is empty")
	}

	result, err = invoke[models.SimilarityCheckResult](ctx, e, invocation{
		contract: contractSimilarity,
		system:   similaritySystemInstruction,
		prompt:   buildSimilarityPrompt(essay, corpus),
	})
	if err != nil {
		return models.SimilarityCheckResult{}, err
	}

	result.SimilarityPercentage = Round2(Clamp(result.SimilarityPercentage, 100))
	if result.MostSimilarEssayIndex < -1 || result.MostSimilarEssayIndex >= len(corpus) {
		result.MostSimilarEssayIndex = -1
	}
	result.Explanation = e.sanitizer.Text(result.Explanation)
	return result, nil
}
