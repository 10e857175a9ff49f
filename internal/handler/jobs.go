package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/pipeline"
	"github.com/dreamforge/api/internal/queue"
	"github.com/dreamforge/api/internal/service"
	"github.com/dreamforge/api/internal/store"
	"github.com/dreamforge/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/jobs
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId/status
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(c.Context(), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Manifest handles GET /api/jobs/:jobId/manifest
func (h *JobHandler) Manifest(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Manifest(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobActive) {
			return response.NotFound(c, "Job has no manifest yet")
		}
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// RegenerateScene handles POST /api/jobs/:jobId/scenes/:sceneIndex/regenerate
func (h *JobHandler) RegenerateScene(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}
	sceneIndex, err := strconv.Atoi(c.Params("sceneIndex"))
	if err != nil || sceneIndex < 0 {
		return response.ValidationError(c, "Scene index must be a non-negative integer", nil)
	}

	// Body is optional; an empty body keeps the original prompt.
	var req model.RegenerateSceneRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	result, err := h.service.RegenerateScene(c.Context(), jobID, sceneIndex, &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// mapServiceError translates service layer errors into HTTP responses.
func mapServiceError(c *fiber.Ctx, err error) error {
	var verr *pipeline.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, pipeline.ErrJobActive):
		return response.Conflict(c, "Job is still being processed")
	case errors.Is(err, pipeline.ErrRegenInFlight):
		return response.Conflict(c, "Scene regeneration already in progress")
	case errors.Is(err, queue.ErrDuplicateJob):
		return response.Conflict(c, "A job with this ID already exists")
	case errors.Is(err, queue.ErrQueueFull):
		return response.QueueFull(c)
	case errors.As(err, &verr):
		return response.ValidationError(c, verr.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
