package grading

import (
	"github.com/kurid3v/AVinci/internal/models"
	"github.com/kurid3v/AVinci/pkg/ai"
)

// Contract names double as schema resource names.
const (
	contractGradingResult     = "grading_result"
	contractRubric            = "rubric"
	contractDistribution      = "answer_distribution"
	contractShortAnswerGrades = "short_answer_grades"
	contractSimilarity        = "similarity"
	contractReadingExtraction = "reading_extraction"
	contractSmartExtraction   = "smart_extraction"
)

func str(description string) *ai.Schema {
	return &ai.Schema{Type: ai.TypeString, Description: description}
}

func num(description string) *ai.Schema {
	return &ai.Schema{Type: ai.TypeNumber, Description: description}
}

func stringList(description string) *ai.Schema {
	return &ai.Schema{Type: ai.TypeArray, Description: description, Items: &ai.Schema{Type: ai.TypeString}}
}

// GradingResultSchema is the essay and reading comprehension feedback shape.
func GradingResultSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"detailedFeedback": {
				Type: ai.TypeArray,
				Items: &ai.Schema{
					Type: ai.TypeObject,
					Properties: map[string]*ai.Schema{
						"criterion":  str("Rubric criterion or question label"),
						"score":      num("Score awarded, between 0 and the criterion maximum"),
						"feedback":   str("Specific feedback for this criterion"),
						"questionId": str("Question identifier, reading comprehension only"),
					},
					Required: []string{"criterion", "score", "feedback"},
				},
			},
			"totalScore":         num("Sum of the awarded scores"),
			"maxScore":           num("Maximum attainable score"),
			"generalSuggestions": stringList("Actionable suggestions for improvement"),
		},
		Required: []string{"detailedFeedback", "totalScore", "maxScore", "generalSuggestions"},
	}
}

// RubricSchema is the structured rubric extraction shape.
func RubricSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeArray,
		Items: &ai.Schema{
			Type: ai.TypeObject,
			Properties: map[string]*ai.Schema{
				"criterion": str("Name of the criterion"),
				"maxScore":  num("Maximum points for the criterion"),
			},
			Required: []string{"criterion", "maxScore"},
		},
	}
}

// DistributionSchema is the canonical answer distribution shape: an array of
// answer records. A map keyed by question id is still accepted on decode.
func DistributionSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeArray,
		Items: &ai.Schema{
			Type: ai.TypeObject,
			Properties: map[string]*ai.Schema{
				"questionId":       str("Identifier of the question being answered"),
				"selectedOptionId": str("Identifier of the chosen option, multiple choice only"),
				"writtenAnswer":    str("Free text answer, short answer only"),
			},
			Required: []string{"questionId"},
		},
	}
}

func shortAnswerGradesSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"grades": {
				Type: ai.TypeArray,
				Items: &ai.Schema{
					Type: ai.TypeObject,
					Properties: map[string]*ai.Schema{
						"questionId": str("Identifier of the graded question"),
						"score":      num("Score between 0 and the question maximum"),
						"feedback":   str("Rationale for the score"),
					},
					Required: []string{"questionId", "score", "feedback"},
				},
			},
			"generalSuggestions": stringList("Suggestions for the student"),
		},
		Required: []string{"grades"},
	}
}

func similaritySchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"similarityPercentage":  num("Similarity with the closest essay, 0 to 100"),
			"explanation":           str("Short explanation of the overlap"),
			"mostSimilarEssayIndex": {Type: ai.TypeInteger, Description: "Zero-based index of the closest essay, -1 if none"},
		},
		Required: []string{"similarityPercentage", "explanation", "mostSimilarEssayIndex"},
	}
}

func readingExtractionSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"passage": str("Full reading passage"),
			"questions": {
				Type: ai.TypeArray,
				Items: &ai.Schema{
					Type: ai.TypeObject,
					Properties: map[string]*ai.Schema{
						"questionText": str("Question as written"),
						"questionType": {
							Type: ai.TypeString,
							Enum: []string{string(models.QuestionTypeMultipleChoice), string(models.QuestionTypeShortAnswer)},
						},
						"maxScore": num("Points for the question"),
						"options": {
							Type: ai.TypeArray,
							Items: &ai.Schema{
								Type: ai.TypeObject,
								Properties: map[string]*ai.Schema{
									"text":      str("Option text"),
									"isCorrect": {Type: ai.TypeBoolean},
								},
								Required: []string{"text"},
							},
						},
						"gradingCriteria": str("What a complete short answer must contain"),
					},
					Required: []string{"questionText", "questionType"},
				},
			},
		},
		Required: []string{"passage", "questions"},
	}
}

func smartExtractionSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"type": {
				Type: ai.TypeString,
				Enum: []string{string(models.ProblemTypeEssay), string(models.ProblemTypeReadingComprehension)},
			},
			"title": str("Short title for the assignment"),
			"essayData": {
				Type: ai.TypeObject,
				Properties: map[string]*ai.Schema{
					"prompt":         str("Essay prompt"),
					"rawRubric":      str("Rubric text as written"),
					"rubricItems":    RubricSchema(),
					"customMaxScore": num("Total score of the essay"),
				},
				Required: []string{"prompt"},
			},
			"readingCompData": readingExtractionSchema(),
		},
		Required: []string{"type", "title"},
	}
}

func contracts() map[string]*ai.Schema {
	return map[string]*ai.Schema{
		contractGradingResult:     GradingResultSchema(),
		contractRubric:            RubricSchema(),
		contractDistribution:      DistributionSchema(),
		contractShortAnswerGrades: shortAnswerGradesSchema(),
		contractSimilarity:        similaritySchema(),
		contractReadingExtraction: readingExtractionSchema(),
		contractSmartExtraction:   smartExtractionSchema(),
	}
}
