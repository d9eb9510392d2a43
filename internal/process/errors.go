package process

import "fmt"

// SpawnError means the tool could not be launched at all, typically because
// it is not installed or not on PATH.
type SpawnError struct {
	Tool string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v. Is %s installed and in PATH?", e.Tool, e.Err, e.Tool)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the tool ran but exited non-zero. Stderr holds whatever the
// tool printed before exiting.
type ExitError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed with exit code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s failed with exit code %d. Error: %s", e.Tool, e.ExitCode, e.Stderr)
}

// ReadError means the tool reported success but its expected output file is
// missing, empty or unreadable.
type ReadError struct {
	Tool string
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s output %s unreadable: %v", e.Tool, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
