package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/service"
	"github.com/kurid3v/AVinci/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Put("/:id/feedback", middleware.RequireRole(staffRoles...), h.updateFeedback)
}

// get returns a submission to staff or to the student who wrote it.
func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !isStaff(c) && submission.SubmitterID != userIDFromContext(c) {
		return utils.SendError(c, fiber.StatusNotFound, service.ErrSubmissionNotFound.Error())
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) updateFeedback(c *fiber.Ctx) error {
	var payload dto.FeedbackUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.UpdateFeedback(c.UserContext(), c.Params("id"), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "feedback updated", submission)
}
