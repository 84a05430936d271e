package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]string      `json:"details"`
}

func respond(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestEnvelopes(t *testing.T) {
	cases := []struct {
		name    string
		handler fiber.Handler
		status  int
		success bool
		message string
	}{
		{
			name: "created submission",
			handler: func(c *fiber.Ctx) error {
				return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", fiber.Map{"id": 7})
			},
			status: fiber.StatusCreated, success: true, message: "submission created",
		},
		{
			name:    "default success message",
			handler: func(c *fiber.Ctx) error { return utils.SendSuccess(c, "", nil) },
			status:  fiber.StatusOK, success: true, message: "success",
		},
		{
			name:    "plain error",
			handler: func(c *fiber.Ctx) error { return utils.SendError(c, fiber.StatusConflict, "phase changed concurrently") },
			status:  fiber.StatusConflict, success: false, message: "phase changed concurrently",
		},
		{
			name:    "zero status falls back to 500",
			handler: func(c *fiber.Ctx) error { return utils.Fail(c, 0, "", nil) },
			status:  fiber.StatusInternalServerError, success: false, message: "error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := respond(t, tc.handler)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.success, payload.Success)
			require.Equal(t, tc.message, payload.Message)
		})
	}
}

func TestOKCarriesPagination(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []string{"a", "b"}, "activity logs", fiber.Map{"page": 2, "total": 30})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `["a","b"]`, string(payload.Data))
	require.Equal(t, float64(2), payload.Meta["page"])
	require.Equal(t, float64(30), payload.Meta["total"])
}

func TestFailCarriesFieldDetails(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", map[string]string{"submission_end": "must be after submission_start"})
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, payload.Success)
	require.Equal(t, "must be after submission_start", payload.Details["submission_end"])
	require.Empty(t, payload.Data)
}
