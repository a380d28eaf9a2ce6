package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProblemType distinguishes essay assignments from reading comprehension sets.
type ProblemType string

const (
	ProblemTypeEssay                ProblemType = "essay"
	ProblemTypeReadingComprehension ProblemType = "reading_comprehension"
)

// QuestionType distinguishes how a reading comprehension question is answered.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// DefaultEssayMaxScore is the essay target score when none is configured.
const DefaultEssayMaxScore = 10.0

// DefaultQuestionMaxScore is applied to questions without an explicit max score.
const DefaultQuestionMaxScore = 1.0

// RubricItem is a single structured rubric criterion.
type RubricItem struct {
	ID        string  `json:"id,omitempty"`
	Criterion string  `json:"criterion"`
	MaxScore  float64 `json:"maxScore"`
}

// QuestionOption is one choice of a multiple-choice question.
type QuestionOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// Question belongs to a reading comprehension problem.
type Question struct {
	ID              string           `json:"id"`
	QuestionText    string           `json:"questionText"`
	QuestionType    QuestionType     `json:"questionType"`
	Options         []QuestionOption `json:"options,omitempty"`
	CorrectOptionID string           `json:"correctOptionId,omitempty"`
	MaxScore        float64          `json:"maxScore,omitempty"`
	GradingCriteria string           `json:"gradingCriteria,omitempty"`
}

// CorrectOption returns the designated correct option id. The explicit
// correctOptionId wins; otherwise the first option flagged isCorrect is used.
func (q Question) CorrectOption() string {
	if q.CorrectOptionID != "" {
		return q.CorrectOptionID
	}
	for _, option := range q.Options {
		if option.IsCorrect {
			return option.ID
		}
	}
	return ""
}

// EffectiveMaxScore returns the question max score, defaulting to 1.
func (q Question) EffectiveMaxScore() float64 {
	if q.MaxScore > 0 {
		return q.MaxScore
	}
	return DefaultQuestionMaxScore
}

// Problem is an assignment students answer.
type Problem struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	Title          string       `gorm:"size:255;not null" json:"title"`
	Type           ProblemType  `gorm:"size:32;not null;index" json:"type"`
	Prompt         string       `gorm:"type:text" json:"prompt"`
	Passage        string       `gorm:"type:text" json:"passage,omitempty"`
	RawRubric      string       `gorm:"type:text" json:"rawRubric,omitempty"`
	RubricItems    []RubricItem `gorm:"type:text;serializer:json" json:"rubricItems,omitempty"`
	CustomMaxScore *float64     `json:"customMaxScore,omitempty"`
	Questions      []Question   `gorm:"type:text;serializer:json" json:"questions,omitempty"`
	CreatedBy      string       `gorm:"size:64;index" json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (p *Problem) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// MaxScoreTarget is the scale essay totals are reported on.
func (p Problem) MaxScoreTarget() float64 {
	if p.CustomMaxScore != nil && *p.CustomMaxScore > 0 {
		return *p.CustomMaxScore
	}
	return DefaultEssayMaxScore
}

// RubricMaxSum is the sum of the structured rubric item maxima.
func (p Problem) RubricMaxSum() float64 {
	var sum float64
	for _, item := range p.RubricItems {
		sum += item.MaxScore
	}
	return sum
}

// IsEssay reports whether the problem is an essay assignment.
func (p Problem) IsEssay() bool {
	return p.Type == ProblemTypeEssay
}
