package job

import (
	"context"
	"errors"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/chunker"
	"github.com/makeasinger/ttsstream/internal/process"
	"github.com/makeasinger/ttsstream/pkg/response"
)

// ErrorCode maps a job failure to the code reported to the client.
func ErrorCode(err error) string {
	var (
		spawnErr    *process.SpawnError
		exitErr     *process.ExitError
		readErr     *process.ReadError
		resourceErr *artifact.ResourceError
	)
	switch {
	case errors.Is(err, chunker.ErrEmptyInput):
		return response.CodeEmptyInput
	case errors.As(err, &spawnErr):
		return response.CodeProcessSpawnError
	case errors.As(err, &exitErr):
		return response.CodeProcessExitError
	case errors.As(err, &readErr):
		return response.CodeProcessReadError
	case errors.As(err, &resourceErr):
		return response.CodeResourceError
	case errors.Is(err, context.DeadlineExceeded):
		return response.CodeJobTimeout
	case errors.Is(err, context.Canceled):
		return response.CodeJobCanceled
	}
	return response.CodeJobFailed
}

// errorMessage is the client-facing text for a failure.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Job timed out"
	case errors.Is(err, context.Canceled):
		return "Job canceled"
	}
	return err.Error()
}
