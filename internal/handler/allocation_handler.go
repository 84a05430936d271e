package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// AllocationHandler pairs reviewers with submissions and runs allocators.
type AllocationHandler struct {
	service   service.AllocationService
	validator *validator.Validate
	logger    zerolog.Logger
	execute   fiber.Handler
}

// NewAllocationHandler builds an allocation handler instance.
func NewAllocationHandler(service service.AllocationService, validate *validator.Validate, logger zerolog.Logger) *AllocationHandler {
	return &AllocationHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "allocation_handler").Logger(),
	}
}

// WithExecuteLimiter throttles allocator runs.
func (h *AllocationHandler) WithExecuteLimiter(limiter fiber.Handler) *AllocationHandler {
	h.execute = limiter
	return h
}

// Register attaches the routes to the versioned API group.
func (h *AllocationHandler) Register(router fiber.Router) {
	router.Post("/workshops/:id/allocations", h.add)
	router.Delete("/allocations/:id", h.remove)
	router.Post("/workshops/:id/allocators/:name/init", h.init)
	if h.execute != nil {
		router.Post("/workshops/:id/allocators/:name/execute", h.execute, h.run)
	} else {
		router.Post("/workshops/:id/allocators/:name/execute", h.run)
	}
}

func (h *AllocationHandler) add(c *fiber.Ctx) error {
	if _, err := parseUintParam(c, "id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AllocationAddRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}
	weight := 1
	if payload.Weight != nil {
		weight = *payload.Weight
	}

	resp, err := h.service.AddAllocation(c.UserContext(), actorFromContext(c), payload.SubmissionID, payload.ReviewerID, weight)
	if errors.Is(err, allocation.ErrAllocationExists) {
		return utils.SendSuccess(c, "allocation already exists", resp)
	}
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "allocation added", resp)
}

func (h *AllocationHandler) remove(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.RemoveAllocation(c.UserContext(), actorFromContext(c), assessmentID, c.QueryBool("force")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "allocation removed", nil)
}

func (h *AllocationHandler) init(c *fiber.Ctx) error {
	workshopID, name, payload, err := h.allocatorRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Init(c.UserContext(), actorFromContext(c), workshopID, name, payload.Settings)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "allocator initialised", result)
}

func (h *AllocationHandler) run(c *fiber.Ctx) error {
	workshopID, name, payload, err := h.allocatorRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Execute(c.UserContext(), actorFromContext(c), workshopID, name, payload.Settings)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "allocator executed", result)
}

func (h *AllocationHandler) allocatorRequest(c *fiber.Ctx) (uint, string, dto.AllocatorRequest, error) {
	var payload dto.AllocatorRequest
	workshopID, err := parseUintParam(c, "id")
	if err != nil {
		return 0, "", payload, err
	}
	name := strings.ToLower(strings.TrimSpace(c.Params("name")))
	if name == "" {
		return 0, "", payload, errors.New("invalid allocator")
	}
	if err := parseBody(c, &payload); err != nil {
		return 0, "", payload, errors.New("invalid request body")
	}
	return workshopID, name, payload, nil
}

func (h *AllocationHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}
