package dto

import (
	"time"

	"github.com/kurid3v/AVinci/internal/models"
)

// CriterionAverage aggregates the scores given for one criterion or question.
type CriterionAverage struct {
	Key          string  `json:"key"`
	Criterion    string  `json:"criterion"`
	AverageScore float64 `json:"averageScore"`
	MaxScore     float64 `json:"maxScore"`
	Count        int     `json:"count"`
}

// SubmissionDigest is a compact view of a graded submission.
type SubmissionDigest struct {
	SubmissionID  string    `json:"submissionId"`
	SubmitterID   string    `json:"submitterId"`
	TotalScore    float64   `json:"totalScore"`
	MaxScore      float64   `json:"maxScore"`
	TeacherEdited bool      `json:"teacherEdited"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ProblemSummaryResponse aggregates the grading results of one problem.
type ProblemSummaryResponse struct {
	ProblemID          string             `json:"problemId"`
	Title              string             `json:"title"`
	Type               models.ProblemType `json:"type"`
	SubmissionCount    int                `json:"submissionCount"`
	TeacherEditedCount int                `json:"teacherEditedCount"`
	SimilarityFlagged  int                `json:"similarityFlagged"`
	AverageScore       float64            `json:"averageScore"`
	HighestScore       float64            `json:"highestScore"`
	LowestScore        float64            `json:"lowestScore"`
	MaxScore           float64            `json:"maxScore"`
	Criteria           []CriterionAverage `json:"criteria"`
	Recent             []SubmissionDigest `json:"recent"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}
