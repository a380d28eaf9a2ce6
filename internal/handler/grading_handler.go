package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kurid3v/AVinci/internal/dto"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/service"
	"github.com/kurid3v/AVinci/internal/utils"
)

// GradingHandler exposes the AI operations.
type GradingHandler struct {
	grading   service.GradingService
	regrades  service.RegradeService
	scans     service.ScanService
	validator *validator.Validate
	logger    zerolog.Logger
	actions   map[string]aiAction
}

type aiAction struct {
	staffOnly bool
	run       func(c *fiber.Ctx, payload json.RawMessage) (interface{}, error)
}

// NewGradingHandler constructs the AI handler.
func NewGradingHandler(grading service.GradingService, regrades service.RegradeService, scans service.ScanService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	h := &GradingHandler{
		grading:   grading,
		regrades:  regrades,
		scans:     scans,
		validator: validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
	h.actions = h.registry()
	return h
}

// Register wires the AI routes.
func (h *GradingHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(staffRoles...)

	router.Post("", h.dispatch)
	router.Get("/health", h.health)
	router.Post("/grade-essay", h.gradeEssay)
	router.Post("/grade-reading", h.gradeReading)
	router.Post("/distribute-answers", h.distributeAnswers)
	router.Post("/image-to-text", h.imageToText)
	router.Post("/scan", h.scan)
	router.Post("/parse-rubric", staff, h.parseRubric)
	router.Post("/smart-extract", staff, h.smartExtract)
	router.Post("/extract-reading", staff, h.extractReading)
}

func (h *GradingHandler) health(c *fiber.Ctx) error {
	status := h.grading.TestConnection(c.UserContext())
	if !status.Success {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
			Success: false,
			Data:    status,
			Message: status.Message,
		})
	}
	return utils.SendSuccess(c, "AI provider reachable", status)
}

func (h *GradingHandler) gradeEssay(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "essay graded", h.grading.GradeEssay)
}

func (h *GradingHandler) gradeReading(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "reading comprehension graded", h.grading.GradeReading)
}

func (h *GradingHandler) distributeAnswers(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "answers distributed", h.grading.DistributeAnswers)
}

func (h *GradingHandler) imageToText(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "image transcribed", h.grading.ImageToText)
}

func (h *GradingHandler) parseRubric(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "rubric parsed", h.grading.ParseRubric)
}

func (h *GradingHandler) smartExtract(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "problem extracted", h.grading.SmartExtract)
}

func (h *GradingHandler) extractReading(c *fiber.Ctx) error {
	return bindAndRun(c, h.logger, "reading comprehension extracted", h.grading.ExtractReading)
}

func (h *GradingHandler) scan(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.scans.Transcribe(c.UserContext(), file, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "scan transcribed", result)
}

// dispatch serves the single-endpoint action protocol.
func (h *GradingHandler) dispatch(c *fiber.Ctx) error {
	var req dto.AIActionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return respondError(c, h.logger, err)
	}

	action, ok := h.actions[strings.TrimSpace(req.Action)]
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
	if action.staffOnly && !isStaff(c) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	result, err := action.run(c, req.Payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, req.Action+" completed", result)
}

func (h *GradingHandler) registry() map[string]aiAction {
	return map[string]aiAction{
		"grade": {run: decodeAndCall(h.grading.GradeEssay)},
		"grade_reading_comprehension": {run: decodeAndCall(h.grading.GradeReading)},
		"distribute_answers":          {run: decodeAndCall(h.grading.DistributeAnswers)},
		"image_to_text":               {run: decodeAndCall(h.grading.ImageToText)},
		"parseRubric":                 {staffOnly: true, run: decodeAndCall(h.grading.ParseRubric)},
		"extract_reading_comp":        {staffOnly: true, run: decodeAndCall(h.grading.ExtractReading)},
		"smart_extract":               {staffOnly: true, run: decodeAndCall(h.grading.SmartExtract)},
		"test_connection": {run: func(c *fiber.Ctx, _ json.RawMessage) (interface{}, error) {
			return h.grading.TestConnection(c.UserContext()), nil
		}},
		"regrade_all": {staffOnly: true, run: func(c *fiber.Ctx, raw json.RawMessage) (interface{}, error) {
			payload, err := h.regradePayload(raw)
			if err != nil {
				return nil, err
			}
			return regradeResult(h.regrades.RegradeAll(c.UserContext(), payload.ProblemID, actorFromContext(c)))
		}},
		"regrade_selected": {staffOnly: true, run: func(c *fiber.Ctx, raw json.RawMessage) (interface{}, error) {
			payload, err := h.regradePayload(raw)
			if err != nil {
				return nil, err
			}
			return regradeResult(h.regrades.RegradeSelected(c.UserContext(), payload.ProblemID, payload.SubmissionIDs, actorFromContext(c)))
		}},
	}
}

func (h *GradingHandler) regradePayload(raw json.RawMessage) (dto.RegradeActionPayload, error) {
	var payload dto.RegradeActionPayload
	if err := decodePayload(raw, &payload); err != nil {
		return payload, err
	}
	return payload, h.validator.Struct(payload)
}

var errInvalidPayload = errors.New("invalid action payload")

func decodePayload(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errInvalidPayload
	}
	return nil
}

// bindAndRun parses the JSON body into the request type of call and sends
// its result in the standard envelope.
func bindAndRun[Req, Resp any](c *fiber.Ctx, logger zerolog.Logger, message string, call func(context.Context, Req) (Resp, error)) error {
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := call(c.UserContext(), req)
	if err != nil {
		return respondError(c, logger, err)
	}
	return utils.SendSuccess(c, message, result)
}

func decodeAndCall[Req, Resp any](call func(context.Context, Req) (Resp, error)) func(*fiber.Ctx, json.RawMessage) (interface{}, error) {
	return func(c *fiber.Ctx, raw json.RawMessage) (interface{}, error) {
		var req Req
		if err := decodePayload(raw, &req); err != nil {
			return nil, err
		}
		return call(c.UserContext(), req)
	}
}
