package grading

import (
	"errors"
	"fmt"

	"github.com/kurid3v/AVinci/pkg/ai"
)

var (
	// ErrConfiguration indicates the LLM provider is missing or rejected the credentials.
	ErrConfiguration = errors.New("ai grading is not configured")
	// ErrMalformedResponse indicates the model output could not be turned into a result.
	ErrMalformedResponse = errors.New("AI did not return a valid result")
	// ErrInvalidInput indicates the caller supplied something that cannot be graded.
	ErrInvalidInput = errors.New("invalid grading input")
)

// classify maps provider failures onto the grading taxonomy. Transient
// failures keep their ai.Error so callers can still inspect them.
func classify(err error) error {
	switch ai.CodeOf(err) {
	case ai.CodeConfiguration:
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	case ai.CodeInvalidResponse:
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	default:
		return err
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
