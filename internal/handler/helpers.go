package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/grading"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/service"
	"github.com/kurid3v/AVinci/internal/utils"
	"github.com/kurid3v/AVinci/pkg/ai"
)

// Roles allowed to author problems and override grades.
var staffRoles = []string{"teacher", "admin"}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_role").(string); ok {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func isStaff(c *fiber.Ctx) bool {
	role := userRoleFromContext(c)
	for _, allowed := range staffRoles {
		if role == allowed {
			return true
		}
	}
	return false
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Namespace()] = fieldErr.Tag()
	}
	return details
}

// statusClientClosedRequest reports work abandoned because the caller went away.
const statusClientClosedRequest = 499

// cancelledRegrade keeps the counts a regrade reached before it was cancelled.
type cancelledRegrade struct {
	result dto.RegradeResponse
	err    error
}

func (e *cancelledRegrade) Error() string { return e.err.Error() }

func (e *cancelledRegrade) Unwrap() error { return e.err }

func regradeResult(result dto.RegradeResponse, err error) (dto.RegradeResponse, error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return result, &cancelledRegrade{result: result, err: err}
	}
	return result, err
}

// respondError maps service and grading errors onto HTTP statuses.
func respondError(c *fiber.Ctx, base zerolog.Logger, err error) error {
	logger := requestLogger(base, c)

	if details := validationDetails(err); details != nil {
		return utils.SendErrorWithData(c, fiber.StatusBadRequest, "validation failed", details)
	}

	var cancelled *cancelledRegrade
	if errors.As(err, &cancelled) {
		logger.Warn().
			Int("updated", cancelled.result.UpdatedCount).
			Int("failed", cancelled.result.FailedCount).
			Msg("regrade cancelled")
		return utils.SendErrorWithData(c, statusClientClosedRequest, "regrade cancelled", cancelled.result)
	}

	switch {
	case errors.Is(err, service.ErrProblemNotFound), errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, errInvalidPayload),
		errors.Is(err, service.ErrInvalidProblem),
		errors.Is(err, service.ErrEmptySubmission),
		errors.Is(err, service.ErrScoreOutOfRange),
		errors.Is(err, service.ErrWrongProblemType),
		errors.Is(err, service.ErrScanTypeNotAllowed),
		errors.Is(err, grading.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrScanTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrRegradeInProgress):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, grading.ErrMalformedResponse):
		logger.Warn().Err(err).Msg("AI returned an unusable result")
		return utils.SendError(c, fiber.StatusBadGateway, grading.ErrMalformedResponse.Error())
	case errors.Is(err, grading.ErrConfiguration):
		logger.Error().Err(err).Msg("AI provider not configured")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "AI grading is not configured")
	case ai.IsTransient(err):
		logger.Warn().Err(err).Msg("AI provider unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "AI service is temporarily unavailable, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return utils.SendError(c, statusClientClosedRequest, "request cancelled")
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
