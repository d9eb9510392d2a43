// Package artifact manages the per-job directories under the artifact root:
// one private directory per job holding its fragments and, after a
// successful run, the merged artifact.
package artifact

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for job ids or file names that are not a single
// plain path element.
var ErrInvalidName = errors.New("invalid path element")

// ResourceError reports a directory or file operation that failed.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// EnsureDirs creates each directory if it does not already exist.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ResourceError{Op: "create directory", Path: dir, Err: err}
		}
	}
	return nil
}

type Store struct {
	root string
}

// NewStore provisions root (idempotently) and returns a store over it.
func NewStore(root string) (*Store, error) {
	if err := EnsureDirs(root); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// fragmentDir holds a job's intermediate fragments. Artifact names are single
// path elements, so no artifact can land inside it.
const fragmentDir = "fragments"

// JobDir is a job's private working directory.
type JobDir struct {
	JobID string
	Path  string
}

// Allocate creates the job's directory. It fails if the directory exists.
func (s *Store) Allocate(jobID string) (*JobDir, error) {
	if !validElement(jobID) {
		return nil, &ResourceError{Op: "allocate job directory", Path: jobID, Err: ErrInvalidName}
	}
	dir := filepath.Join(s.root, jobID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, &ResourceError{Op: "create job directory", Path: dir, Err: err}
	}
	if err := os.Mkdir(filepath.Join(dir, fragmentDir), 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, &ResourceError{Op: "create fragment directory", Path: dir, Err: err}
	}
	return &JobDir{JobID: jobID, Path: dir}, nil
}

// FragmentPath is where the fragment for chunk index is written.
func (d *JobDir) FragmentPath(index int) string {
	return filepath.Join(d.Path, fragmentDir, fmt.Sprintf("chunk_%d.wav", index+1))
}

// ArtifactPath is where the merged artifact named name is written.
func (d *JobDir) ArtifactPath(name string) string {
	return filepath.Join(d.Path, name)
}

// RemoveFragments deletes intermediate fragment files and then the emptied
// fragment directory, keeping the artifact. Failures are logged and the
// first one returned.
func (d *JobDir) RemoveFragments(paths []string) error {
	var first error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Job %s: failed to remove chunk file %s: %v", d.JobID, p, err)
			if first == nil {
				first = &ResourceError{Op: "remove fragment", Path: p, Err: err}
			}
		}
	}
	fragDir := filepath.Join(d.Path, fragmentDir)
	if err := os.Remove(fragDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Job %s: failed to remove fragment directory: %v", d.JobID, err)
		if first == nil {
			first = &ResourceError{Op: "remove fragment directory", Path: fragDir, Err: err}
		}
	}
	return first
}

// Remove deletes the job's directory and everything in it.
func (s *Store) Remove(jobID string) error {
	if !validElement(jobID) {
		return &ResourceError{Op: "remove job directory", Path: jobID, Err: ErrInvalidName}
	}
	dir := filepath.Join(s.root, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return &ResourceError{Op: "remove job directory", Path: dir, Err: err}
	}
	return nil
}

// Exists reports whether the job's directory is present.
func (s *Store) Exists(jobID string) bool {
	if !validElement(jobID) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, jobID))
	return err == nil
}

// Resolve maps a retrieval reference's parts to the artifact's path on disk.
// It does not check that the file exists.
func (s *Store) Resolve(jobID, name string) (string, error) {
	if !validElement(jobID) || !validElement(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, jobID, name), nil
}

// RetrievalReference is the client-facing locator for a job's artifact.
func RetrievalReference(jobID, name string) string {
	return "/download/" + jobID + "/" + name
}

// SafeName reduces a client-supplied file name to a plain base name with no
// separators or control characters. It returns "" when nothing usable remains.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == ':' {
			return -1
		}
		return r
	}, name)
	if !validElement(name) {
		return ""
	}
	return name
}

func validElement(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && s == strings.TrimSpace(s)
}
