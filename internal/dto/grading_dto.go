package dto

import (
	"encoding/json"

	"github.com/kurid3v/AVinci/internal/models"
)

// GradeEssayRequest grades an essay without persisting a submission.
type GradeEssayRequest struct {
	ProblemID string `json:"problemId" validate:"required"`
	Essay     string `json:"essay" validate:"required,max=50000"`
}

// GradeEssayResponse carries the feedback and the similarity check.
type GradeEssayResponse struct {
	Feedback        models.Feedback               `json:"feedback"`
	SimilarityCheck *models.SimilarityCheckResult `json:"similarityCheck,omitempty"`
}

// GradeReadingRequest grades reading comprehension answers.
type GradeReadingRequest struct {
	ProblemID string          `json:"problemId" validate:"required"`
	Answers   []models.Answer `json:"answers" validate:"omitempty,dive"`
}

// DistributeAnswersRequest splits free text across a problem's questions.
type DistributeAnswersRequest struct {
	ProblemID       string          `json:"problemId" validate:"required"`
	RawText         string          `json:"rawText" validate:"required,max=50000"`
	ExistingAnswers []models.Answer `json:"existingAnswers" validate:"omitempty,dive"`
}

// DistributeAnswersResponse returns the distributed answers and the merge
// with the existing ones.
type DistributeAnswersResponse struct {
	Answers []models.Answer `json:"answers"`
	Merged  []models.Answer `json:"merged"`
}

// ParseRubricRequest converts free-text rubric into items.
type ParseRubricRequest struct {
	RawRubric string `json:"rawRubric" validate:"required,max=20000"`
}

// InlineImage is a base64 encoded image sent in a JSON body.
type InlineImage struct {
	MimeType string `json:"mimeType" validate:"required"`
	Data     string `json:"data" validate:"required,base64"`
}

// ExtractRequest carries teaching material to digitise.
type ExtractRequest struct {
	Text   string        `json:"text" validate:"max=100000"`
	Images []InlineImage `json:"images" validate:"omitempty,max=10,dive"`
}

// ImageToTextRequest transcribes one base64 encoded image.
type ImageToTextRequest struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data" validate:"required,base64"`
}

// ScanResponse is returned after transcribing an uploaded scan.
type ScanResponse struct {
	Text       string `json:"text"`
	MimeType   string `json:"mimeType"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

// AIActionRequest is the single-endpoint form used by older clients: the
// action name selects the operation and payload carries its request body.
type AIActionRequest struct {
	Action  string          `json:"action" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// RegradeActionPayload is the payload of the regrade_all and regrade_selected actions.
type RegradeActionPayload struct {
	ProblemID     string   `json:"problemId" validate:"required"`
	SubmissionIDs []string `json:"submissionIds"`
}
