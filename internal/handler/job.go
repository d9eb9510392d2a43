package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/makeasinger/ttsstream/internal/store"
	"github.com/makeasinger/ttsstream/pkg/response"
)

// JobReader looks up job status records.
type JobReader interface {
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
}

type JobHandler struct {
	jobs JobReader
}

func NewJobHandler(jobs JobReader) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	rec, err := h.jobs.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, rec)
}
