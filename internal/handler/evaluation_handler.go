package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// EvaluationHandler runs the grading evaluation of a workshop.
type EvaluationHandler struct {
	service service.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the /workshops group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/:id/evaluate", h.evaluate)
	router.Delete("/:id/grading-grades", h.clear)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	workshopID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EvaluateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Evaluate(c.UserContext(), actorFromContext(c), workshopID, payload.Settings)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading grades evaluated", resp)
}

func (h *EvaluationHandler) clear(c *fiber.Ctx) error {
	workshopID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	cleared, err := h.service.ClearGradingGrades(c.UserContext(), actorFromContext(c), workshopID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading grades cleared", fiber.Map{"cleared": cleared})
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
