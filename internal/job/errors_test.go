package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/chunker"
	"github.com/makeasinger/ttsstream/internal/process"
	"github.com/makeasinger/ttsstream/pkg/response"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{chunker.ErrEmptyInput, response.CodeEmptyInput},
		{fmt.Errorf("chunk 2: %w", &process.SpawnError{Tool: "espeak", Err: errors.New("not found")}), response.CodeProcessSpawnError},
		{&process.ExitError{Tool: "ffmpeg", ExitCode: 1}, response.CodeProcessExitError},
		{&process.ReadError{Tool: "espeak", Path: "x"}, response.CodeProcessReadError},
		{&artifact.ResourceError{Op: "create", Path: "x", Err: errors.New("denied")}, response.CodeResourceError},
		{context.DeadlineExceeded, response.CodeJobTimeout},
		{fmt.Errorf("chunk 1: %w", context.Canceled), response.CodeJobCanceled},
		{errors.New("other"), response.CodeJobFailed},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
