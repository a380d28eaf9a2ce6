package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer is a student's response to one reading comprehension question.
type Answer struct {
	QuestionID       string `json:"questionId"`
	SelectedOptionID string `json:"selectedOptionId,omitempty"`
	WrittenAnswer    string `json:"writtenAnswer,omitempty"`
}

// IsEmpty reports whether the answer carries neither a choice nor text.
func (a Answer) IsEmpty() bool {
	return strings.TrimSpace(a.SelectedOptionID) == "" && strings.TrimSpace(a.WrittenAnswer) == ""
}

// DetailedFeedbackItem scores one rubric criterion or question.
type DetailedFeedbackItem struct {
	Criterion  string  `json:"criterion"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback"`
	QuestionID string  `json:"questionId,omitempty"`
}

// Feedback is a full grading result.
type Feedback struct {
	DetailedFeedback   []DetailedFeedbackItem `json:"detailedFeedback"`
	TotalScore         float64                `json:"totalScore"`
	MaxScore           float64                `json:"maxScore"`
	GeneralSuggestions []string               `json:"generalSuggestions"`
}

// SimilarityCheckResult compares an essay with the other essays of a problem.
type SimilarityCheckResult struct {
	SimilarityPercentage  float64 `json:"similarityPercentage"`
	Explanation           string  `json:"explanation"`
	MostSimilarEssayIndex int     `json:"mostSimilarEssayIndex"`
}

// Submission is one student's answer to one problem.
type Submission struct {
	ID                    string                 `gorm:"primaryKey;size:36" json:"id"`
	ProblemID             string                 `gorm:"size:36;not null;index" json:"problemId"`
	SubmitterID           string                 `gorm:"size:64;not null;index" json:"submitterId"`
	SubmittedAt           time.Time              `gorm:"not null" json:"submittedAt"`
	Essay                 *string                `gorm:"type:text" json:"essay,omitempty"`
	Answers               []Answer               `gorm:"type:text;serializer:json" json:"answers,omitempty"`
	Feedback              Feedback               `gorm:"type:text;serializer:json" json:"feedback"`
	SimilarityCheck       *SimilarityCheckResult `gorm:"type:text;serializer:json" json:"similarityCheck,omitempty"`
	LastEditedByTeacherAt *time.Time             `gorm:"index" json:"lastEditedByTeacherAt,omitempty"`
	UpdatedAt             time.Time              `json:"updatedAt"`
}

// BeforeCreate assigns the identifier and submission timestamp.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	return nil
}

// EssayText returns the trimmed essay, or an empty string.
func (s Submission) EssayText() string {
	if s.Essay == nil {
		return ""
	}
	return strings.TrimSpace(*s.Essay)
}

// IsTeacherEdited reports whether the feedback is a human correction.
func (s Submission) IsTeacherEdited() bool {
	return s.LastEditedByTeacherAt != nil
}
