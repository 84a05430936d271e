package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// AssessmentHandler serves the reviewer's grading forms and example training.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler builds an assessment handler instance.
func NewAssessmentHandler(service service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches the routes to the versioned API group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Get("/workshops/:id/assessments", h.mine)
	router.Get("/assessments/:id", h.get)
	router.Put("/assessments/:id", h.submit)
	router.Put("/assessments/:id/override", h.override)
	router.Post("/submissions/:id/training", h.startTraining)
}

func (h *AssessmentHandler) mine(c *fiber.Ctx) error {
	workshopID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.service.ListForReviewer(c.UserContext(), actorFromContext(c), workshopID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, items, "assessments retrieved", fiber.Map{"total": len(items)})
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assessment, err := h.service.Get(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assessment retrieved", assessment)
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssessmentSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assessment, err := h.service.Submit(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assessment saved", assessment)
}

func (h *AssessmentHandler) override(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradingGradeOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assessment, err := h.service.OverrideGradingGrade(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading grade overridden", assessment)
}

func (h *AssessmentHandler) startTraining(c *fiber.Ctx) error {
	exampleID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assessment, err := h.service.StartExampleTraining(c.UserContext(), actorFromContext(c), exampleID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "training assessment ready", assessment)
}

func (h *AssessmentHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
