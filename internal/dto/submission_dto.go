package dto

import "github.com/kurid3v/AVinci/internal/models"

// SubmissionCreateRequest is a student's answer to a problem. Reading
// comprehension answers may be sent structured, as free text to be
// distributed across the questions, or both.
type SubmissionCreateRequest struct {
	Essay      *string         `json:"essay" validate:"omitempty,max=50000"`
	Answers    []models.Answer `json:"answers" validate:"omitempty,dive"`
	RawAnswers string          `json:"rawAnswers" validate:"max=50000"`
}

// FeedbackItemRequest is one teacher-edited feedback entry.
type FeedbackItemRequest struct {
	Criterion  string   `json:"criterion" validate:"required"`
	Score      *float64 `json:"score" validate:"required"`
	Feedback   string   `json:"feedback"`
	QuestionID string   `json:"questionId"`
}

// FeedbackUpdateRequest fully replaces the feedback of a submission.
type FeedbackUpdateRequest struct {
	DetailedFeedback   []FeedbackItemRequest `json:"detailedFeedback" validate:"required,min=1,dive"`
	GeneralSuggestions []string              `json:"generalSuggestions"`
}

// RegradeRequest selects which submissions of a problem to regrade. An empty
// list means every submission.
type RegradeRequest struct {
	// All regrades every submission of the problem. Otherwise only
	// SubmissionIDs are regraded and an empty list regrades nothing.
	All                  bool     `json:"-"`
	SubmissionIDs        []string `json:"submissionIds" validate:"omitempty,dive,required"`
	ExcludeTeacherEdited bool     `json:"excludeTeacherEdited"`
}

// RegradeResponse reports the outcome of a batch regrade.
type RegradeResponse struct {
	Success      bool `json:"success"`
	UpdatedCount int  `json:"updatedCount"`
	FailedCount  int  `json:"failedCount"`
	SkippedCount int  `json:"skippedCount"`
	Total        int  `json:"total"`
}
