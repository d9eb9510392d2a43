// Package audio wraps the external synthesis and concatenation tools behind
// the process boundary.
package audio

import (
	"context"
	"errors"
	"os"

	"github.com/makeasinger/ttsstream/internal/process"
)

// Synthesizer turns one text segment into one audio fragment file.
type Synthesizer struct {
	tool   process.Tool
	runner process.Runner
}

func NewSynthesizer(tool process.Tool, runner process.Runner) *Synthesizer {
	return &Synthesizer{tool: tool, runner: runner}
}

// Synthesize writes the spoken form of text to dest and returns dest. The
// call blocks until the tool exits. A non-empty language selects the voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text, dest, language string) (string, error) {
	var args []string
	if language != "" {
		args = append(args, "-v", language)
	}
	// "--" keeps text starting with '-' from being read as an option
	args = append(args, "-w", dest, "--", text)

	res, err := s.runner.Run(ctx, s.tool.Command("", args...))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &process.ExitError{Tool: s.tool.Name, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	if err := checkOutput(s.tool.Name, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// checkOutput verifies a tool's output file exists, is readable and non-empty.
func checkOutput(tool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &process.ReadError{Tool: tool, Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &process.ReadError{Tool: tool, Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &process.ReadError{Tool: tool, Path: path, Err: errors.New("output file is empty")}
	}
	return nil
}
