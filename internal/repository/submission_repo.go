package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kurid3v/AVinci/internal/models"
)

// GradingUpdate replaces the grading outcome of a submission. Feedback is
// always replaced as a whole; SimilarityCheck is only written when non-nil.
// TeacherEditedAt set marks a human correction, nil clears the provenance.
type GradingUpdate struct {
	Feedback        models.Feedback
	SimilarityCheck *models.SimilarityCheckResult
	TeacherEditedAt *time.Time
}

// SubmissionRepository persists student submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	ListByProblem(ctx context.Context, problemID string) ([]models.Submission, error)
	UpdateAnswers(ctx context.Context, id string, answers []models.Answer) (models.Submission, error)
	UpdateGrading(ctx context.Context, id string, update GradingUpdate) (models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByProblem(ctx context.Context, problemID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) UpdateAnswers(ctx context.Context, id string, answers []models.Answer) (models.Submission, error) {
	return r.modify(ctx, id, func(submission *models.Submission) {
		submission.Answers = answers
	})
}

func (r *submissionRepository) UpdateGrading(ctx context.Context, id string, update GradingUpdate) (models.Submission, error) {
	return r.modify(ctx, id, func(submission *models.Submission) {
		submission.Feedback = update.Feedback
		if update.SimilarityCheck != nil {
			submission.SimilarityCheck = update.SimilarityCheck
		}
		submission.LastEditedByTeacherAt = update.TeacherEditedAt
	})
}

// modify runs a read-modify-write on one record inside a transaction.
func (r *submissionRepository) modify(ctx context.Context, id string, apply func(*models.Submission)) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&submission, "id = ?", id).Error; err != nil {
			return err
		}
		apply(&submission)
		return tx.Save(&submission).Error
	})
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}
