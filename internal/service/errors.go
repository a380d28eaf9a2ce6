package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrProblemNotFound indicates the referenced problem does not exist.
	ErrProblemNotFound = errors.New("problem not found")
	// ErrSubmissionNotFound indicates the referenced submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrInvalidProblem indicates a problem definition cannot be graded.
	ErrInvalidProblem = errors.New("invalid problem")
	// ErrEmptySubmission indicates a submission without essay or answers.
	ErrEmptySubmission = errors.New("submission has no answer")
	// ErrScoreOutOfRange indicates an edited score outside [0, criterion max].
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrRegradeInProgress indicates another regrade holds the problem lock.
	ErrRegradeInProgress = errors.New("a regrade is already running for this problem")
	// ErrWrongProblemType indicates the operation does not apply to the problem type.
	ErrWrongProblemType = errors.New("operation does not match the problem type")
	// ErrScanTooLarge indicates the uploaded scan exceeds the size limit.
	ErrScanTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrScanTypeNotAllowed indicates the uploaded scan is not a supported image.
	ErrScanTypeNotAllowed = errors.New("file type not allowed")
)

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
