package handler

import (
	"errors"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/pkg/response"
)

type DownloadHandler struct {
	artifacts *artifact.Store
}

func NewDownloadHandler(artifacts *artifact.Store) *DownloadHandler {
	return &DownloadHandler{artifacts: artifacts}
}

// Artifact handles GET /download/:jobId/:filename
func (h *DownloadHandler) Artifact(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	filename := c.Params("filename")

	path, err := h.artifacts.Resolve(jobID, filename)
	if err != nil {
		return response.ValidationError(c, "Invalid download path", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return response.NotFound(c, "File not found")
		}
		log.Printf("Download %s/%s: %v", jobID, filename, err)
		return response.ServiceError(c, "Failed to access file")
	}
	if info.IsDir() {
		return response.NotFound(c, "File not found")
	}

	return c.Download(path, filename)
}
