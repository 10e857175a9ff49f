package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dreamforge/api/internal/auth"
	"github.com/dreamforge/api/internal/config"
	"github.com/dreamforge/api/internal/middleware"
	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/pipeline"
	"github.com/dreamforge/api/internal/queue"
	"github.com/dreamforge/api/internal/service"
	"github.com/dreamforge/api/internal/store"
)

const testJWTSecret = "test-secret-for-handlers"

// recordingDispatcher stands in for the Redis-backed queue.
type recordingDispatcher struct {
	tasks []queue.Task
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, task queue.Task) error {
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *recordingDispatcher) CancelQueued(ctx context.Context, jobID string) (bool, error) {
	return true, nil
}

// setupApp wires the job routes the way main.go does, with an in-memory
// store and no rate limiting so tests need no Redis.
func setupApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	validate := validator.New()
	cfg := config.PipelineConfig{
		Workers:     1,
		StepMillis:  400,
		JobTTLHours: 24,
	}

	jobService := service.NewJobService(st, &recordingDispatcher{}, pipeline.NewJobLocks(), cfg)
	jobHandler := NewJobHandler(jobService, validate)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024,
	})

	jobs := app.Group("/api/jobs", authMiddleware.Authenticate())
	jobs.Post("/", jobHandler.Submit)
	jobs.Get("/:jobId/status", jobHandler.Status)
	jobs.Get("/:jobId/manifest", jobHandler.Manifest)
	jobs.Post("/:jobId/cancel", jobHandler.Cancel)
	jobs.Post("/:jobId/scenes/:sceneIndex/regenerate", jobHandler.RegenerateScene)

	return app, st
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "dreamforge-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, string(b))
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestSubmitJobEndpoint(t *testing.T) {
	app, st := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/",
		`{"type":"image","options":{"prompt":"a lighthouse at dusk"}}`)
	assertStatus(t, resp, fiber.StatusAccepted)

	body := parseJSON(t, resp)
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected jobId in response")
	}
	if body["status"] != "queued" {
		t.Errorf("expected queued status, got %v", body["status"])
	}
	if _, err := st.Get(context.Background(), jobID); err != nil {
		t.Errorf("submitted job not persisted: %v", err)
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := doRequest(app, "POST", "/api/jobs/",
		`{"type":"image","options":{"prompt":"x"}}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, fiber.StatusUnauthorized)
}

func TestSubmitRejectsInvalidType(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/",
		`{"type":"audio","options":{"prompt":"x"}}`)
	assertStatus(t, resp, fiber.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/", `{"type":`)
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestStatusEndpoint(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/",
		`{"type":"video","options":{"scenePrompts":["the arrival","the chase"]}}`)
	assertStatus(t, resp, fiber.StatusAccepted)
	jobID := parseJSON(t, resp)["jobId"].(string)

	resp = doAuthRequest(t, app, "GET", "/api/jobs/"+jobID+"/status", "")
	assertStatus(t, resp, fiber.StatusOK)
	body := parseJSON(t, resp)
	if body["status"] != "queued" {
		t.Errorf("expected queued, got %v", body["status"])
	}
	if _, present := body["outputs"]; present {
		t.Error("queued job must not expose outputs")
	}
}

func TestStatusUnknownJob(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "GET", "/api/jobs/no-such-job/status", "")
	assertStatus(t, resp, fiber.StatusNotFound)
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestManifestBeforeCompletion(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/",
		`{"type":"image","options":{"prompt":"x"}}`)
	jobID := parseJSON(t, resp)["jobId"].(string)

	resp = doAuthRequest(t, app, "GET", "/api/jobs/"+jobID+"/manifest", "")
	assertStatus(t, resp, fiber.StatusNotFound)
}

func TestCancelEndpoint(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/",
		`{"type":"image","options":{"prompt":"x"}}`)
	jobID := parseJSON(t, resp)["jobId"].(string)

	resp = doAuthRequest(t, app, "POST", "/api/jobs/"+jobID+"/cancel", "")
	assertStatus(t, resp, fiber.StatusOK)
	body := parseJSON(t, resp)
	if body["canceled"] != true {
		t.Errorf("expected canceled=true, got %v", body["canceled"])
	}

	// Record is gone after cancel.
	resp = doAuthRequest(t, app, "GET", "/api/jobs/"+jobID+"/status", "")
	assertStatus(t, resp, fiber.StatusNotFound)
}

func TestCancelNonQueuedJob(t *testing.T) {
	app, st := setupApp(t)

	st.Put(context.Background(), &model.Job{
		ID:        "busy",
		Type:      model.JobTypeImage,
		Status:    model.JobStatusRunning,
		CreatedAt: time.Now(),
	})

	resp := doAuthRequest(t, app, "POST", "/api/jobs/busy/cancel", "")
	assertStatus(t, resp, fiber.StatusConflict)
	if code := errorCode(t, resp); code != "CONFLICT" {
		t.Errorf("expected CONFLICT, got %s", code)
	}
}

func TestRegenerateSceneEndpoint(t *testing.T) {
	app, st := setupApp(t)

	st.Put(context.Background(), &model.Job{
		ID:           "vid",
		Type:         model.JobTypeVideo,
		Options:      model.Options{ScenePrompts: []string{"a", "b"}},
		Status:       model.JobStatusCompleted,
		ScenePrompts: []string{"a", "b"},
		SceneProgress: map[int]model.SceneState{
			0: {Status: model.SceneStatusCompleted, ArtifactURL: "https://x.test/s0.mp4"},
			1: {Status: model.SceneStatusCompleted, ArtifactURL: "https://x.test/s1.mp4"},
		},
		Outputs:   []string{"https://x.test/final.mp4"},
		CreatedAt: time.Now(),
	})

	resp := doAuthRequest(t, app, "POST", "/api/jobs/vid/scenes/1/regenerate",
		`{"prompt":"b, but stormy"}`)
	assertStatus(t, resp, fiber.StatusAccepted)
	body := parseJSON(t, resp)
	if body["sceneIndex"] != float64(1) {
		t.Errorf("expected sceneIndex 1, got %v", body["sceneIndex"])
	}

	job, _ := st.Get(context.Background(), "vid")
	if job.ScenePrompts[1] != "b, but stormy" {
		t.Errorf("expected replaced prompt, got %q", job.ScenePrompts[1])
	}
	if job.SceneProgress[1].Status != model.SceneStatusPending {
		t.Errorf("expected pending scene, got %s", job.SceneProgress[1].Status)
	}
}

func TestRegenerateSceneOnPlainJob(t *testing.T) {
	app, st := setupApp(t)

	st.Put(context.Background(), &model.Job{
		ID:        "plain",
		Type:      model.JobTypeImage,
		Options:   model.Options{Prompt: "x"},
		Status:    model.JobStatusCompleted,
		CreatedAt: time.Now(),
	})

	resp := doAuthRequest(t, app, "POST", "/api/jobs/plain/scenes/0/regenerate", "")
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestRegenerateSceneBadIndex(t *testing.T) {
	app, _ := setupApp(t)

	resp := doAuthRequest(t, app, "POST", "/api/jobs/vid/scenes/one/regenerate", "")
	assertStatus(t, resp, fiber.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}
