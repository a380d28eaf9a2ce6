package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/service"
	"github.com/kurid3v/AVinci/internal/utils"
)

// ProblemHandler exposes problem authoring, submission and regrade routes.
type ProblemHandler struct {
	problems    service.ProblemService
	submissions service.SubmissionService
	regrades    service.RegradeService
	summaries   service.ProblemSummaryService
	logger      zerolog.Logger
}

// NewProblemHandler constructs a problem handler.
func NewProblemHandler(problems service.ProblemService, submissions service.SubmissionService, regrades service.RegradeService, summaries service.ProblemSummaryService, logger zerolog.Logger) *ProblemHandler {
	return &ProblemHandler{
		problems:    problems,
		submissions: submissions,
		regrades:    regrades,
		summaries:   summaries,
		logger:      logger.With().Str("component", "problem_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. aiLimit guards
// the routes that call the AI provider and may be nil.
func (h *ProblemHandler) Register(router fiber.Router, aiLimit fiber.Handler) {
	if aiLimit == nil {
		aiLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	staff := middleware.RequireRole(staffRoles...)

	router.Get("", h.list)
	router.Post("", staff, h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", staff, h.update)
	router.Delete("/:id", staff, h.delete)
	router.Get("/:id/summary", staff, h.summary)
	router.Get("/:id/submissions", staff, h.listSubmissions)
	router.Post("/:id/submissions", aiLimit, h.submit)
	router.Post("/:id/regrade", staff, aiLimit, h.regrade)
}

func (h *ProblemHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	result, err := h.problems.List(c.UserContext(), dto.ProblemListRequest{
		Type:     c.Query("type"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problems retrieved", result)
}

func (h *ProblemHandler) create(c *fiber.Ctx) error {
	var payload dto.ProblemRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	problem, err := h.problems.Create(c.UserContext(), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "problem created", problem)
}

func (h *ProblemHandler) get(c *fiber.Ctx) error {
	problem, err := h.problems.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problem retrieved", problem)
}

func (h *ProblemHandler) update(c *fiber.Ctx) error {
	var payload dto.ProblemRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	problem, err := h.problems.Update(c.UserContext(), c.Params("id"), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problem updated", problem)
}

func (h *ProblemHandler) delete(c *fiber.Ctx) error {
	if err := h.problems.Delete(c.UserContext(), c.Params("id"), actorFromContext(c)); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problem deleted", nil)
}

func (h *ProblemHandler) summary(c *fiber.Ctx) error {
	summary, err := h.summaries.GetSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problem summary retrieved", summary)
}

func (h *ProblemHandler) listSubmissions(c *fiber.Ctx) error {
	submissions, err := h.submissions.ListByProblem(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *ProblemHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.submissions.Submit(c.UserContext(), c.Params("id"), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", submission)
}

func (h *ProblemHandler) regrade(c *fiber.Ctx) error {
	var payload dto.RegradeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	// No submissionIds means the whole problem; an explicit list, even an
	// empty one, is a selection.
	payload.All = payload.SubmissionIDs == nil

	result, err := regradeResult(h.regrades.Regrade(c.UserContext(), c.Params("id"), payload, actorFromContext(c)))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "regrade completed", result)
}
