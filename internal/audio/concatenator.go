package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/process"
)

const manifestName = "concat_list.txt"

// Concatenator merges ordered fragments into one artifact with stream copy,
// never re-encoding.
type Concatenator struct {
	tool   process.Tool
	runner process.Runner
}

func NewConcatenator(tool process.Tool, runner process.Runner) *Concatenator {
	return &Concatenator{tool: tool, runner: runner}
}

// Concatenate merges fragments, in slice order, into dest and returns dest.
// The tool runs from dest's directory; the manifest it reads there is removed
// before returning whatever the outcome.
func (c *Concatenator) Concatenate(ctx context.Context, fragments []string, dest string) (string, error) {
	if len(fragments) == 0 {
		return "", fmt.Errorf("concatenate: no fragments")
	}

	if filepath.Base(dest) == manifestName {
		return "", &artifact.ResourceError{Op: "concatenate", Path: dest, Err: artifact.ErrInvalidName}
	}

	dir := filepath.Dir(dest)
	manifestPath := filepath.Join(dir, manifestName)
	if err := os.WriteFile(manifestPath, []byte(Manifest(dir, fragments)), 0o600); err != nil {
		return "", &artifact.ResourceError{Op: "write concat list", Path: manifestPath, Err: err}
	}
	defer func() {
		if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove concat list %s: %v", manifestPath, err)
		}
	}()

	res, err := c.runner.Run(ctx, c.tool.Command(dir,
		"-f", "concat",
		"-safe", "0",
		"-i", manifestName,
		"-c", "copy",
		filepath.Base(dest),
	))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &process.ExitError{Tool: c.tool.Name, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	if err := checkOutput(c.tool.Name, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Manifest renders an ffmpeg concat list. Fragments inside dir are written
// relative to it.
func Manifest(dir string, fragments []string) string {
	var b strings.Builder
	for _, f := range fragments {
		if rel, err := filepath.Rel(dir, f); err == nil && !strings.HasPrefix(rel, "..") {
			f = rel
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(f, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}
