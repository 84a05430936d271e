package contract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/dto"
	"github.com/noah-isme/gema-workshop-api/internal/handler"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/service"
)

// Unimplemented methods panic through the nil embedded interface.
type stubWorkshopService struct {
	service.WorkshopService
	workshop models.Workshop
}

func (s stubWorkshopService) Get(context.Context, uint) (dto.WorkshopResponse, error) {
	return dto.NewWorkshopResponse(s.workshop), nil
}

func (s stubWorkshopService) UpdateSettings(context.Context, service.Actor, uint, dto.WorkshopSettingsRequest) (dto.WorkshopResponse, error) {
	return dto.WorkshopResponse{}, service.FieldErrors{
		{Field: "submission_end", Message: "must be after the submission start"},
		{Field: "strategy", Message: `unknown grading strategy "rubric"`},
	}
}

type stubAllocationService struct {
	service.AllocationService
	result *allocation.Result
}

func (s stubAllocationService) Execute(_ context.Context, _ service.Actor, _ uint, name string, _ json.RawMessage) (dto.AllocationResultResponse, error) {
	return dto.NewAllocationResultResponse(name, s.result), nil
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func contractApp() *fiber.App {
	validate := validator.New(validator.WithRequiredStructEnabled())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := now.Add(72 * time.Hour)

	workshops := stubWorkshopService{workshop: models.Workshop{
		ID:            12,
		CourseID:      3,
		Name:          "Lab report review",
		Phase:         models.PhaseAssessment,
		Grade:         80,
		GradingGrade:  20,
		GradeDecimals: 1,
		Strategy:      "accumulative",
		Evaluation:    "best",
		SubmissionEnd: &end,
	}}

	result := allocation.NewResult(now)
	result.Logf("info", 0, "allocating %d reviews per submission", 2)
	result.Logf("ok", 1, "reviewer %d assigned to submission %d", 4, 9)
	result.Finish(allocation.StatusExecuted, "1 new assessment", now.Add(time.Second))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(100))
		c.Locals(middleware.LocalUserRole, "teacher")
		return c.Next()
	})
	handler.NewWorkshopHandler(workshops, nil, validate, zerolog.Nop()).Register(app.Group("/api/v1/workshops"))
	handler.NewAllocationHandler(stubAllocationService{result: result}, validate, zerolog.Nop()).Register(app.Group("/api/v1"))
	return app
}

func decodeBody(t *testing.T, resp *http.Response) interface{} {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestWorkshopContract(t *testing.T) {
	schema := compileSchema(t, "workshop.schema.json")

	resp, err := contractApp().Test(httptest.NewRequest(http.MethodGet, "/api/v1/workshops/12", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, schema.Validate(decodeBody(t, resp)))
}

func TestSettingsFieldErrorsContract(t *testing.T) {
	schema := compileSchema(t, "field_errors.schema.json")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/workshops/12", bytes.NewBufferString(`{"name":"Lab report review","strategy":"rubric"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := contractApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, schema.Validate(decodeBody(t, resp)))
}

func TestAllocationResultContract(t *testing.T) {
	schema := compileSchema(t, "allocation_result.schema.json")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workshops/12/allocators/random/execute", bytes.NewBufferString(`{"settings":{"numofreviews":2}}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := contractApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, schema.Validate(decodeBody(t, resp)))
}
