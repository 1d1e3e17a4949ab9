package execx

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/samirrijal/sarpipe/internal/pkg/logging"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestCommandRunner_CapturesOutput(t *testing.T) {
	sh := requireShell(t)
	r := NewCommandRunner(logging.Discard())
	r.Env["SARPIPE_TEST_VALUE"] = "hello"

	res, err := r.Run(context.Background(), sh, "-c", `echo "$SARPIPE_TEST_VALUE"; echo oops >&2`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("unexpected stderr %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestCommandRunner_NonZeroExit(t *testing.T) {
	sh := requireShell(t)
	r := NewCommandRunner(logging.Discard())

	res, err := r.Run(context.Background(), sh, "-c", "echo 'tile not found' >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %+v", res)
	}
	if !strings.Contains(err.Error(), "tile not found") || !strings.Contains(err.Error(), "code 3") {
		t.Errorf("error should carry stderr and code: %v", err)
	}
}

func TestCommandRunner_MissingProgram(t *testing.T) {
	r := NewCommandRunner(logging.Discard())
	if _, err := r.Run(context.Background(), "/nonexistent/sarpipe-tool"); err == nil {
		t.Error("expected error for missing program")
	}
}

func TestCommandRunner_WorkingDir(t *testing.T) {
	sh := requireShell(t)
	dir := t.TempDir()
	r := NewCommandRunner(logging.Discard())
	r.WorkingDir = dir

	res, err := r.Run(context.Background(), sh, "-c", "pwd")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(strings.TrimSpace(res.Stdout), dir) {
		t.Errorf("expected pwd %s, got %q", dir, res.Stdout)
	}
}

func TestTail(t *testing.T) {
	if got := tail("  short  ", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := tail("abcdefghij", 3); got != "...hij" {
		t.Errorf("unexpected %q", got)
	}
}
