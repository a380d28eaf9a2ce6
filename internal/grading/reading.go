package grading

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kurid3v/AVinci/internal/models"
)

const noAnswerFeedback = "No answer submitted."

type pendingAnswer struct {
	index    int
	question models.Question
	answer   models.Answer
}

type shortAnswerGrades struct {
	Grades []struct {
		QuestionID string  `json:"questionId"`
		Score      float64 `json:"score"`
		Feedback   string  `json:"feedback"`
	} `json:"grades"`
	GeneralSuggestions []string `json:"generalSuggestions"`
}

// GradeReadingComprehension grades every question of problem. Multiple-choice
// questions are checked against the answer key; answered short-answer
// questions are graded together in one LLM call. Unanswered questions are
// reported with a zero score so the maximum stays complete.
func (e *Engine) GradeReadingComprehension(ctx context.Context, problem models.Problem, answers []models.Answer) (fb models.Feedback, err error) {
	ctx, span := e.startSpan(ctx, "grading.reading_comprehension",
		attribute.String("problem_id", problem.ID),
		attribute.Int("questions", len(problem.Questions)),
	)
	defer func() { endSpan(span, err) }()

	if len(problem.Questions) == 0 {
		return models.Feedback{}, invalidInput("problem has no questions")
	}

	byQuestion := make(map[string]models.Answer, len(answers))
	for _, answer := range answers {
		if !answer.IsEmpty() {
			byQuestion[answer.QuestionID] = answer
		}
	}

	details := make([]models.DetailedFeedbackItem, len(problem.Questions))
	var pending []pendingAnswer
	var maxTotal float64

	for i, question := range problem.Questions {
		max := question.EffectiveMaxScore()
		maxTotal += max
		label := fmt.Sprintf("Question %d", i+1)
		details[i] = models.DetailedFeedbackItem{Criterion: label, QuestionID: question.ID, Feedback: noAnswerFeedback}

		answer, ok := byQuestion[question.ID]
		if !ok {
			continue
		}

		switch question.QuestionType {
		case models.QuestionTypeMultipleChoice:
			item, err := gradeMultipleChoice(question, answer)
			if err != nil {
				return models.Feedback{}, err
			}
			item.Criterion = label
			details[i] = item
		default:
			if answer.WrittenAnswer == "" {
				continue
			}
			pending = append(pending, pendingAnswer{index: i, question: question, answer: answer})
		}
	}

	suggestions := []string{}
	if len(pending) > 0 {
		graded, err := invoke[shortAnswerGrades](ctx, e, invocation{
			contract: contractShortAnswerGrades,
			system:   readingSystemInstruction,
			prompt:   buildShortAnswerPrompt(problem, pending),
		})
		if err != nil {
			return models.Feedback{}, err
		}

		byID := make(map[string]int, len(graded.Grades))
		for i, grade := range graded.Grades {
			byID[grade.QuestionID] = i
		}
		for _, item := range pending {
			pos, ok := byID[item.question.ID]
			if !ok {
				return models.Feedback{}, malformed("no grade returned for question %s", item.question.ID)
			}
			grade := graded.Grades[pos]
			details[item.index].Score = Clamp(grade.Score, item.question.EffectiveMaxScore())
			details[item.index].Feedback = grade.Feedback
		}
		if graded.GeneralSuggestions != nil {
			suggestions = graded.GeneralSuggestions
		}
	}

	var total float64
	for _, item := range details {
		total += item.Score
	}

	fb = e.sanitizer.Feedback(models.Feedback{
		DetailedFeedback:   details,
		TotalScore:         Round2(total),
		MaxScore:           Round2(maxTotal),
		GeneralSuggestions: suggestions,
	})
	return fb, nil
}

func gradeMultipleChoice(question models.Question, answer models.Answer) (models.DetailedFeedbackItem, error) {
	correct := question.CorrectOption()
	if correct == "" {
		return models.DetailedFeedbackItem{}, invalidInput("question %s has no correct option", question.ID)
	}

	item := models.DetailedFeedbackItem{QuestionID: question.ID}
	if answer.SelectedOptionID == "" {
		item.Feedback = noAnswerFeedback
		return item, nil
	}

	if answer.SelectedOptionID == correct {
		item.Score = question.EffectiveMaxScore()
		item.Feedback = "Correct."
		return item, nil
	}

	item.Feedback = "Incorrect."
	if text := optionText(question, correct); text != "" {
		item.Feedback = fmt.Sprintf("Incorrect. The correct answer is %q.", text)
	}
	return item, nil
}

func optionText(question models.Question, optionID string) string {
	for _, option := range question.Options {
		if option.ID == optionID {
			return option.Text
		}
	}
	return ""
}
