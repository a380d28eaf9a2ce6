package grading

import "github.com/kurid3v/AVinci/internal/models"

// ReferenceExample is a teacher-corrected submission shown to the model to
// calibrate feedback style. It never changes the scoring standard.
type ReferenceExample struct {
	SubmissionID string
	Essay        string
	Feedback     models.Feedback
}

// SelectReferenceExample returns the most recently teacher-edited essay
// submission, or nil when no submission has been corrected by a teacher.
// AI-only results are never used as a reference.
func SelectReferenceExample(submissions []models.Submission) *ReferenceExample {
	var best *models.Submission
	for i := range submissions {
		candidate := &submissions[i]
		if candidate.EssayText() == "" || candidate.LastEditedByTeacherAt == nil {
			continue
		}
		if best == nil || !candidate.LastEditedByTeacherAt.Before(*best.LastEditedByTeacherAt) {
			best = candidate
		}
	}

	if best == nil {
		return nil
	}

	return &ReferenceExample{
		SubmissionID: best.ID,
		Essay:        *best.Essay,
		Feedback:     best.Feedback,
	}
}

// EssayCorpus collects the non-empty essays of a problem, skipping excludeID.
func EssayCorpus(submissions []models.Submission, excludeID string) []string {
	corpus := make([]string, 0, len(submissions))
	for _, submission := range submissions {
		if submission.ID == excludeID {
			continue
		}
		if text := submission.EssayText(); text != "" {
			corpus = append(corpus, text)
		}
	}
	return corpus
}
