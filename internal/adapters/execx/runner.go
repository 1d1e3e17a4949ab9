// Package execx runs external programs and captures their output.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes a program with arguments.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// CommandRunner implements Runner with os/exec.
type CommandRunner struct {
	// WorkingDir is the directory commands run in; empty means the current one.
	WorkingDir string
	// Env is appended to the current environment.
	Env map[string]string

	log *slog.Logger
}

// NewCommandRunner creates a new CommandRunner.
func NewCommandRunner(log *slog.Logger) *CommandRunner {
	return &CommandRunner{Env: make(map[string]string), log: log}
}

// Run executes program and waits for it. A non-zero exit status is reported
// as an error carrying the tail of stderr; the Result is returned either way.
func (r *CommandRunner) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	if r.WorkingDir != "" {
		cmd.Dir = r.WorkingDir
	}
	if len(r.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("running command", "program", program, "args", strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, fmt.Errorf("%s exited with code %d: %s", program, res.ExitCode, tail(res.Stderr, 512))
		}
		return res, fmt.Errorf("run %s: %w", program, err)
	}
	return res, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
