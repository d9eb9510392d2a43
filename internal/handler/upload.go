package handler

import (
	"log"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/blob"
	"github.com/makeasinger/ttsstream/internal/job"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/makeasinger/ttsstream/pkg/response"
)

const maxUploadSize = job.MaxUploadBytes

type UploadHandler struct {
	blobs blob.Store
}

func NewUploadHandler(blobs blob.Store) *UploadHandler {
	return &UploadHandler{blobs: blobs}
}

// Source handles POST /api/upload/:fileId
// The file id comes from a prior announce-upload over the websocket.
func (h *UploadHandler) Source(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	if _, err := uuid.Parse(fileID); err != nil {
		return response.ValidationError(c, "Invalid fileId", nil)
	}

	// Get file
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	// Validate file size
	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 10MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	// Validate file type
	contentType := file.Header.Get("Content-Type")
	if !validTextType(contentType) {
		return response.ValidationError(c, "Invalid file type. Supported: plain text", map[string]interface{}{
			"contentType": contentType,
		})
	}

	filename := artifact.SafeName(file.Filename)
	if filename == "" {
		return response.ValidationError(c, "Invalid filename", nil)
	}

	// Open file
	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	key := model.StorageKey(fileID, filename)
	if err := h.blobs.Put(c.Context(), key, f, file.Size, contentType); err != nil {
		log.Printf("Upload %s: %v", key, err)
		return response.ServiceError(c, "Failed to store file")
	}
	log.Printf("Upload %s stored (%d bytes)", key, file.Size)

	return response.Created(c, model.UploadResponse{
		FileID:   fileID,
		Filename: filename,
		Size:     file.Size,
	})
}

func validTextType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/octet-stream"
}
