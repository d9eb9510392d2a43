// Package chunker splits source text into the ordered segments handed to the
// synthesis tool, one segment per invocation.
package chunker

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when the text holds no non-blank line.
var ErrEmptyInput = errors.New("no text content found to convert")

// Split returns the trimmed, non-empty lines of text in their original order.
func Split(text string) ([]string, error) {
	var segments []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		segments = append(segments, line)
	}
	if len(segments) == 0 {
		return nil, ErrEmptyInput
	}
	return segments, nil
}
