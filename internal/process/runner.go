package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that was launched.
type Result struct {
	ExitCode int
	Stderr   []byte
}

// Runner executes external commands. A launch failure is returned as a
// *SpawnError; a non-zero exit is reported through Result.ExitCode with a nil
// error. Context cancellation kills the process and returns ctx.Err().
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = io.Discard
	var stderr bytes.Buffer
	c.Stderr = &stderr

	if err := c.Start(); err != nil {
		return Result{ExitCode: -1}, &SpawnError{Tool: cmd.Name, Err: err}
	}

	err := c.Wait()
	result := Result{Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode == 0 {
			// terminated by a signal
			result.ExitCode = -1
		}
		return result, nil
	}
	return result, fmt.Errorf("wait for %s: %w", cmd.Name, err)
}

// Tool is a configured external program plus the arguments that precede
// every invocation.
type Tool struct {
	Name     string
	BaseArgs []string
}

// ParseTool splits a shell-style command line such as "espeak -v es".
func ParseTool(line string) (Tool, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return Tool{}, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(args) == 0 {
		return Tool{}, fmt.Errorf("command empty")
	}
	return Tool{Name: args[0], BaseArgs: args[1:]}, nil
}

// Command builds an invocation of the tool with extra arguments appended.
func (t Tool) Command(dir string, args ...string) Command {
	all := make([]string, 0, len(t.BaseArgs)+len(args))
	all = append(all, t.BaseArgs...)
	all = append(all, args...)
	return Command{Name: t.Name, Args: all, Dir: dir}
}

// Available reports whether the tool binary can be found on PATH.
func (t Tool) Available() bool {
	_, err := exec.LookPath(t.Name)
	return err == nil
}
