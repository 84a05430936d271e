package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-workshop-api/internal/allocation"
	"github.com/noah-isme/gema-workshop-api/internal/config"
	"github.com/noah-isme/gema-workshop-api/internal/evaluation"
	"github.com/noah-isme/gema-workshop-api/internal/grading"
	"github.com/noah-isme/gema-workshop-api/internal/handler"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/internal/models"
	"github.com/noah-isme/gema-workshop-api/internal/repository"
	"github.com/noah-isme/gema-workshop-api/internal/router"
	"github.com/noah-isme/gema-workshop-api/internal/service"
)

const secret = "handler-secret"

type memoryFiles struct{}

func (memoryFiles) StoreArea(_ context.Context, area, name string, reader io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, reader)
	return "https://files.test/" + area + "/" + name, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	store := allocation.Store{
		Workshops:    repository.NewWorkshopRepository(db),
		Submissions:  repository.NewSubmissionRepository(db),
		Assessments:  repository.NewAssessmentRepository(db),
		Participants: repository.NewParticipantRepository(db),
		Scheduled:    repository.NewScheduledAllocationRepository(db),
	}
	forms := repository.NewGradingFormRepository(db)
	bestSettings := repository.NewBestSettingsRepository(db)
	aggregations := repository.NewAggregationRepository(db)

	plugins := service.Plugins{
		Strategies: grading.NewRegistry(),
		Allocators: allocation.NewRegistry(),
		Evaluators: evaluation.NewRegistry(),
	}
	plugins.Strategies.Register(grading.AccumulativeName, func() grading.Strategy { return grading.NewAccumulative(forms) })
	plugins.Allocators.Register(allocation.ManualName, func() allocation.Allocator { return allocation.NewManual(store, logger) })
	plugins.Evaluators.Register(evaluation.BestName, func() evaluation.Evaluator { return evaluation.NewBest(bestSettings) })

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	events := service.NewEventSinks(activity)
	gradebook := service.NewGradebook(repository.NewGradeItemRepository(db))

	aggregation := service.NewAggregationService(store.Submissions, store.Assessments, aggregations, grading.DefaultDecimals, logger)
	phases := service.NewPhaseService(store.Workshops, store.Submissions, store.Assessments, gradebook, events, grading.DefaultDecimals, logger)
	workshops := service.NewWorkshopService(store.Workshops, store.Participants, plugins, gradebook, events, nil, service.WorkshopDefaults{Grade: 80, GradingGrade: 20}, validate, logger)
	submissions := service.NewSubmissionService(store.Workshops, store.Submissions, store.Assessments, memoryFiles{}, events, validate, logger)
	assessments := service.NewAssessmentService(store, plugins.Strategies, aggregation, events, validate, logger)
	allocations := service.NewAllocationService(store, plugins.Allocators, events, logger)
	evaluations := service.NewEvaluationService(store.Workshops, store.Assessments, aggregations, plugins.Evaluators, aggregation, events, logger)

	cfg := config.Config{AppName: "Workshop Test", AppEnv: "test", JWTSecret: secret}
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		WorkshopHandler:   handler.NewWorkshopHandler(workshops, phases, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissions, validate, logger),
		AssessmentHandler: handler.NewAssessmentHandler(assessments, logger),
		AllocationHandler: handler.NewAllocationHandler(allocations, validate, logger),
		EvaluationHandler: handler.NewEvaluationHandler(evaluations, logger),
		ActivityHandler:   handler.NewActivityHandler(activity, logger),
		ExposeMetrics:     true,
	})

	return &testServer{app: app, db: db}
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": role,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, req *http.Request, auth string) (int, envelope) {
	t.Helper()
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload envelope
	if len(body) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(body, &payload), string(body))
	}
	return resp.StatusCode, payload
}

func (s *testServer) json(t *testing.T, method, path, auth string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return s.do(t, req, auth)
}

func (s *testServer) multipart(t *testing.T, path, auth string, fields map[string]string, fileName string, content []byte) (int, envelope) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return s.do(t, req, auth)
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}
