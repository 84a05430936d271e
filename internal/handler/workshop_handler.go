package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// WorkshopHandler exposes workshop instance management and the phase switch.
type WorkshopHandler struct {
	workshops service.WorkshopService
	phases    service.PhaseService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWorkshopHandler builds a workshop handler instance.
func NewWorkshopHandler(workshops service.WorkshopService, phases service.PhaseService, validate *validator.Validate, logger zerolog.Logger) *WorkshopHandler {
	return &WorkshopHandler{
		workshops: workshops,
		phases:    phases,
		validator: validate,
		logger:    logger.With().Str("component", "workshop_handler").Logger(),
	}
}

// Register attaches the routes to the /workshops group.
func (h *WorkshopHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Put("/:id/form", h.saveForm)
	router.Get("/:id/participants", h.participants)
	router.Post("/:id/participants", h.addParticipant)
	router.Post("/:id/phase", h.switchPhase)
	router.Post("/:id/reset", h.reset)
}

func (h *WorkshopHandler) create(c *fiber.Ctx) error {
	var payload dto.WorkshopCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	workshop, err := h.workshops.Create(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "workshop created", workshop)
}

func (h *WorkshopHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	workshop, err := h.workshops.Get(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "workshop retrieved", workshop)
}

func (h *WorkshopHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.WorkshopSettingsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	workshop, err := h.workshops.UpdateSettings(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "workshop updated", workshop)
}

func (h *WorkshopHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.workshops.DeleteInstance(c.UserContext(), actorFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "workshop deleted", nil)
}

func (h *WorkshopHandler) saveForm(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradingFormRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.workshops.SaveGradingForm(c.UserContext(), actorFromContext(c), id, payload.Definition); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grading form saved", nil)
}

func (h *WorkshopHandler) participants(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	roster, err := h.workshops.ListParticipants(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, roster, "participants retrieved", fiber.Map{"total": len(roster)})
}

func (h *WorkshopHandler) addParticipant(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ParticipantRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	participant, err := h.workshops.AddParticipant(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "participant added", participant)
}

func (h *WorkshopHandler) switchPhase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PhaseSwitchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	workshop, err := h.phases.SwitchPhase(c.UserContext(), actorFromContext(c), id, models.Phase(payload.Phase))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "phase switched", workshop)
}

func (h *WorkshopHandler) reset(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ResetRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	statuses, err := h.workshops.ResetUserData(c.UserContext(), actorFromContext(c), id, service.ResetOptions{
		Submissions: payload.Submissions,
		Assessments: payload.Assessments,
		Phase:       payload.Phase,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "workshop reset", statuses)
}

func (h *WorkshopHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
