package dto

import "github.com/kurid3v/AVinci/internal/models"

// RubricItemRequest is one structured rubric criterion.
type RubricItemRequest struct {
	ID        string  `json:"id"`
	Criterion string  `json:"criterion" validate:"required,max=255"`
	MaxScore  float64 `json:"maxScore" validate:"gte=0"`
}

// QuestionOptionRequest is one multiple-choice option.
type QuestionOptionRequest struct {
	ID        string `json:"id"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuestionRequest is one reading comprehension question.
type QuestionRequest struct {
	ID              string                  `json:"id"`
	QuestionText    string                  `json:"questionText" validate:"required"`
	QuestionType    string                  `json:"questionType" validate:"required,oneof=multiple_choice short_answer"`
	Options         []QuestionOptionRequest `json:"options" validate:"omitempty,dive"`
	CorrectOptionID string                  `json:"correctOptionId"`
	MaxScore        float64                 `json:"maxScore" validate:"gte=0"`
	GradingCriteria string                  `json:"gradingCriteria"`
}

// ProblemRequest creates or fully replaces a problem.
type ProblemRequest struct {
	Title          string              `json:"title" validate:"required,min=3,max=255"`
	Type           string              `json:"type" validate:"required,oneof=essay reading_comprehension"`
	Prompt         string              `json:"prompt" validate:"max=20000"`
	Passage        string              `json:"passage" validate:"max=50000"`
	RawRubric      string              `json:"rawRubric" validate:"max=20000"`
	RubricItems    []RubricItemRequest `json:"rubricItems" validate:"omitempty,dive"`
	CustomMaxScore *float64            `json:"customMaxScore" validate:"omitempty,gt=0"`
	Questions      []QuestionRequest   `json:"questions" validate:"omitempty,dive"`
}

// ProblemListRequest defines filters for listing problems.
type ProblemListRequest struct {
	Type     string
	Page     int
	PageSize int
}

// ProblemListResponse wraps a page of problems.
type ProblemListResponse struct {
	Items      []models.Problem `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}
