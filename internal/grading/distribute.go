package grading

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kurid3v/AVinci/internal/models"
)

// DistributeAnswers splits a free-form answer sheet across questions.
// Questions without a discernible answer are absent from the result, which
// is ordered like questions.
func (e *Engine) DistributeAnswers(ctx context.Context, raw string, questions []models.Question) (answers []models.Answer, err error) {
	ctx, span := e.startSpan(ctx, "grading.distribute_answers", attribute.Int("questions", len(questions)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(raw) == "" {
		return nil, invalidInput("answer text is empty")
	}
	if len(questions) == 0 {
		return nil, invalidInput("no questions to distribute answers to")
	}

	decoded, err := invoke[[]models.Answer](ctx, e, invocation{
		contract:  contractDistribution,
		system:    distributionSystemInstruction,
		prompt:    buildDistributionPrompt(raw, questions),
		normalize: normalizeDistribution,
	})
	if err != nil {
		return nil, err
	}

	return reconcileAnswers(decoded, questions), nil
}

// normalizeDistribution converts the legacy map form
// {"q1": {"selectedOptionId": "a"}} into the canonical array form.
func normalizeDistribution(document any) any {
	legacy, ok := document.(map[string]any)
	if !ok {
		return document
	}

	records := make([]any, 0, len(legacy))
	for questionID, value := range legacy {
		entry, ok := value.(map[string]any)
		if !ok {
			continue
		}
		record := map[string]any{"questionId": questionID}
		for key, field := range entry {
			if key != "questionId" {
				record[key] = field
			}
		}
		records = append(records, record)
	}
	return records
}

// reconcileAnswers drops unknown questions and empty entries, resolves option
// letters or texts to option ids and orders the result by question.
func reconcileAnswers(decoded []models.Answer, questions []models.Question) []models.Answer {
	byQuestion := make(map[string]models.Answer, len(decoded))
	for _, answer := range decoded {
		answer.QuestionID = strings.TrimSpace(answer.QuestionID)
		answer.SelectedOptionID = strings.TrimSpace(answer.SelectedOptionID)
		answer.WrittenAnswer = strings.TrimSpace(answer.WrittenAnswer)
		if answer.IsEmpty() {
			continue
		}
		byQuestion[answer.QuestionID] = answer
	}

	result := make([]models.Answer, 0, len(byQuestion))
	for _, question := range questions {
		answer, ok := byQuestion[question.ID]
		if !ok {
			continue
		}

		if question.QuestionType == models.QuestionTypeMultipleChoice {
			selected := resolveOption(question, answer.SelectedOptionID)
			if selected == "" {
				selected = resolveOption(question, answer.WrittenAnswer)
			}
			if selected == "" {
				continue
			}
			result = append(result, models.Answer{QuestionID: question.ID, SelectedOptionID: selected})
			continue
		}

		if answer.WrittenAnswer == "" {
			continue
		}
		result = append(result, models.Answer{QuestionID: question.ID, WrittenAnswer: answer.WrittenAnswer})
	}
	return result
}

func resolveOption(question models.Question, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	for _, option := range question.Options {
		if option.ID == value {
			return option.ID
		}
	}

	letter := strings.ToUpper(strings.Trim(value, ".) "))
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'Z' {
		if idx := int(letter[0] - 'A'); idx < len(question.Options) {
			return question.Options[idx].ID
		}
	}

	for _, option := range question.Options {
		if strings.EqualFold(strings.TrimSpace(option.Text), value) {
			return option.ID
		}
	}
	return ""
}
