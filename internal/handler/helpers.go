package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/internal/registry"
	"github.com/noah-isme/gema-workshop-api/internal/service"
	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

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

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	switch id := c.Locals(middleware.LocalUserID).(type) {
	case uint:
		return id
	case int:
		if id > 0 {
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if role, ok := c.Locals(middleware.LocalUserRole).(string); ok {
		return role
	}
	return ""
}

// actorFromContext resolves the caller's role capabilities plus any the token grants.
// A request without a user resolves to an actor with no capabilities.
func actorFromContext(c *fiber.Ctx) service.Actor {
	id := userIDFromContext(c)
	if id == 0 {
		return service.NewActor(0, "anonymous")
	}
	actor := service.ActorForRole(id, userRoleFromContext(c))
	if extra, ok := c.Locals(middleware.LocalUserCapabilities).([]string); ok {
		for _, capability := range extra {
			if capability = strings.ToLower(strings.TrimSpace(capability)); capability != "" {
				actor.Capabilities[service.Capability(capability)] = struct{}{}
			}
		}
	}
	return actor
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

func parseBody(c *fiber.Ctx, target interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(target)
}

// respondError maps service, plugin and validation failures onto HTTP statuses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var (
		validationErrors validator.ValidationErrors
		fieldErrors      service.FieldErrors
		syntaxErr        *json.SyntaxError
		typeErr          *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &fieldErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid settings", []service.FieldError(fieldErrors))
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, validationErrors.Error(), nil)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return utils.Fail(c, fiber.StatusBadRequest, "malformed settings", nil)
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrNotOwner):
		return utils.Fail(c, fiber.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrPhaseForbidden),
		errors.Is(err, service.ErrExamplesNotAssessed):
		return utils.Fail(c, fiber.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrWorkshopNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrAssessmentNotFound):
		return utils.Fail(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, registry.ErrUnknown):
		return utils.Fail(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidPhaseTransition),
		errors.Is(err, service.ErrPhaseConflict),
		errors.Is(err, service.ErrSubmissionExists),
		errors.Is(err, service.ErrSubmissionHasAssessments),
		errors.Is(err, service.ErrReferenceMissing),
		errors.Is(err, allocation.ErrAllocationExists),
		errors.Is(err, allocation.ErrReferenceExists),
		errors.Is(err, allocation.ErrAssessmentGraded):
		return utils.Fail(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrUnsupportedFileType):
		return utils.Fail(c, fiber.StatusUnsupportedMediaType, err.Error(), nil)
	case errors.Is(err, grading.ErrFormNotDefined),
		errors.Is(err, grading.ErrIncompleteForm),
		errors.Is(err, grading.ErrGradeOutOfRange),
		errors.Is(err, allocation.ErrSelfAssessmentNotAllowed),
		errors.Is(err, allocation.ErrSubmissionMismatch),
		errors.Is(err, allocation.ErrInvalidWeight),
		errors.Is(err, allocation.ErrInvalidSettings):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), nil)
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.Fail(c, fiber.StatusInternalServerError, "internal server error", nil)
	}
}
