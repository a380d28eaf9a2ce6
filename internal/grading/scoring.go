package grading

import (
	"html"
	"math"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kurid3v/AVinci/internal/models"
)

const scoreEpsilon = 1e-9

// Sanitizer strips markup from model or teacher supplied text.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a sanitizer using the strict policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text removes every tag and returns plain text.
func (s *Sanitizer) Text(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// Feedback sanitises every free text field of fb in place and returns it.
func (s *Sanitizer) Feedback(fb models.Feedback) models.Feedback {
	details := make([]models.DetailedFeedbackItem, 0, len(fb.DetailedFeedback))
	for _, item := range fb.DetailedFeedback {
		item.Criterion = s.Text(item.Criterion)
		item.Feedback = s.Text(item.Feedback)
		item.QuestionID = strings.TrimSpace(item.QuestionID)
		details = append(details, item)
	}
	fb.DetailedFeedback = details

	suggestions := make([]string, 0, len(fb.GeneralSuggestions))
	for _, suggestion := range fb.GeneralSuggestions {
		if cleaned := s.Text(suggestion); cleaned != "" {
			suggestions = append(suggestions, cleaned)
		}
	}
	fb.GeneralSuggestions = suggestions
	return fb
}

// Clamp bounds value to [0, max].
func Clamp(value, max float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > max {
		return max
	}
	return value
}

// Round2 rounds to two decimal places.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// CriterionMax resolves the maximum score of the i-th detail item. Items are
// matched by criterion name first and by position second. The second result
// is false when no rubric item applies.
func CriterionMax(items []models.RubricItem, criterion string, index int) (float64, bool) {
	name := normalizeCriterion(criterion)
	if name != "" {
		for _, item := range items {
			if normalizeCriterion(item.Criterion) == name {
				return item.MaxScore, true
			}
		}
	}
	if index >= 0 && index < len(items) {
		return items[index].MaxScore, true
	}
	return 0, false
}

func normalizeCriterion(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// FinalizeEssayFeedback enforces the per-criterion clamp and rescales the total
// onto target. When the rubric maxima sum to something other than target the
// raw sum is scaled linearly; a zero rubric sum falls back to the raw sum.
func FinalizeEssayFeedback(fb models.Feedback, items []models.RubricItem, target float64) models.Feedback {
	if target <= 0 {
		target = models.DefaultEssayMaxScore
	}

	var rawSum float64
	for i := range fb.DetailedFeedback {
		max, ok := CriterionMax(items, fb.DetailedFeedback[i].Criterion, i)
		if !ok {
			max = target
		}
		fb.DetailedFeedback[i].Score = Clamp(fb.DetailedFeedback[i].Score, max)
		rawSum += fb.DetailedFeedback[i].Score
	}

	var rubricSum float64
	for _, item := range items {
		rubricSum += item.MaxScore
	}

	total := rawSum
	if rubricSum > 0 && math.Abs(rubricSum-target) > scoreEpsilon {
		total = rawSum / rubricSum * target
	}

	fb.TotalScore = Round2(Clamp(total, target))
	fb.MaxScore = target
	if fb.GeneralSuggestions == nil {
		fb.GeneralSuggestions = []string{}
	}
	return fb
}

// MergeAnswers overlays incoming answers onto existing ones. Questions not
// mentioned in incoming keep their previous answer; existing order is kept
// and new questions are appended.
func MergeAnswers(existing, incoming []models.Answer) []models.Answer {
	merged := make([]models.Answer, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))
	for _, answer := range existing {
		if pos, ok := index[answer.QuestionID]; ok {
			merged[pos] = answer
			continue
		}
		index[answer.QuestionID] = len(merged)
		merged = append(merged, answer)
	}

	for _, answer := range incoming {
		if answer.IsEmpty() {
			continue
		}
		if pos, ok := index[answer.QuestionID]; ok {
			merged[pos] = answer
			continue
		}
		index[answer.QuestionID] = len(merged)
		merged = append(merged, answer)
	}
	return merged
}
