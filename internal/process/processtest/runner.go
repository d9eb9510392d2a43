// Package processtest provides a scriptable process.Runner that emulates the
// synthesis and concatenation tools without launching anything.
package processtest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/makeasinger/ttsstream/internal/process"
)

// Marker is the fragment content the fake synthesizer writes for text.
func Marker(text string) string {
	return "<" + text + ">"
}

// DecodeMarkers recovers the texts from concatenated markers, in order.
func DecodeMarkers(data string) []string {
	var out []string
	for _, part := range strings.Split(data, ">") {
		if strings.HasPrefix(part, "<") {
			out = append(out, part[1:])
		}
	}
	return out
}

// Runner fakes "espeak -w <out> -- <text>" and
// "ffmpeg -f concat -safe 0 -i <list> -c copy <out>".
type Runner struct {
	SynthTool  string
	ConcatTool string

	// FailSynthAt fails the n-th synthesis call (1-based) with exit code 1.
	FailSynthAt int
	// FailConcat makes the concatenation call exit 1.
	FailConcat bool
	// Unspawnable lists tools reported as not installed.
	Unspawnable map[string]bool
	// SkipOutput reports success without writing the output file.
	SkipOutput bool
	// Gate, when non-nil, blocks every synthesis call until it is closed.
	Gate chan struct{}

	mu         sync.Mutex
	calls      []process.Command
	synthCalls int
	manifests  [][]string
}

func New() *Runner {
	return &Runner{SynthTool: "espeak", ConcatTool: "ffmpeg"}
}

func (r *Runner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Unspawnable[cmd.Name] {
		return process.Result{ExitCode: -1}, &process.SpawnError{Tool: cmd.Name, Err: os.ErrNotExist}
	}

	switch cmd.Name {
	case r.SynthTool:
		return r.synthesize(ctx, cmd)
	case r.ConcatTool:
		return r.concatenate(cmd)
	}
	return process.Result{ExitCode: 127, Stderr: []byte("unknown tool")}, nil
}

func (r *Runner) synthesize(ctx context.Context, cmd process.Command) (process.Result, error) {
	r.mu.Lock()
	r.synthCalls++
	n := r.synthCalls
	r.mu.Unlock()

	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return process.Result{ExitCode: -1}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return process.Result{ExitCode: -1}, err
	}
	if r.FailSynthAt > 0 && n == r.FailSynthAt {
		return process.Result{ExitCode: 1, Stderr: []byte("synthetic failure")}, nil
	}

	out := argAfter(cmd.Args, "-w")
	text := cmd.Args[len(cmd.Args)-1]
	if out == "" {
		return process.Result{ExitCode: 2, Stderr: []byte("missing -w")}, nil
	}
	if r.SkipOutput {
		return process.Result{}, nil
	}
	if err := os.WriteFile(resolve(cmd.Dir, out), []byte(Marker(text)), 0o644); err != nil {
		return process.Result{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}
	return process.Result{}, nil
}

func (r *Runner) concatenate(cmd process.Command) (process.Result, error) {
	list := argAfter(cmd.Args, "-i")
	entries, err := ReadManifest(resolve(cmd.Dir, list))
	if err != nil {
		return process.Result{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}

	r.mu.Lock()
	r.manifests = append(r.manifests, entries)
	r.mu.Unlock()

	if r.FailConcat {
		return process.Result{ExitCode: 1, Stderr: []byte("synthetic concat failure")}, nil
	}
	if r.SkipOutput {
		return process.Result{}, nil
	}

	var merged []byte
	for _, entry := range entries {
		data, err := os.ReadFile(resolve(cmd.Dir, entry))
		if err != nil {
			return process.Result{ExitCode: 1, Stderr: []byte(err.Error())}, nil
		}
		merged = append(merged, data...)
	}
	out := cmd.Args[len(cmd.Args)-1]
	if err := os.WriteFile(resolve(cmd.Dir, out), merged, 0o644); err != nil {
		return process.Result{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}
	return process.Result{}, nil
}

// Calls returns every command seen so far.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.calls...)
}

// CallsTo returns the commands that invoked the named tool.
func (r *Runner) CallsTo(name string) []process.Command {
	var out []process.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Manifests returns the entries of every concat list read, in call order.
func (r *Runner) Manifests() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.manifests...)
}

// ReadManifest parses an ffmpeg concat list ("file '<path>'" per line).
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			return nil, fmt.Errorf("bad manifest line %q", line)
		}
		quoted := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		entries = append(entries, strings.ReplaceAll(quoted, `'\''`, "'"))
	}
	return entries, scanner.Err()
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
