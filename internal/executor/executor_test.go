package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_CapturesOutput(t *testing.T) {
	e := NewUnrestricted()

	result, err := e.Run(context.Background(), "/bin/sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.Output() != "out\nerr\n" {
		t.Errorf("output = %q", result.Output())
	}
}

func TestRun_ArgsAreNotShellExpanded(t *testing.T) {
	e := NewUnrestricted()

	result, err := e.Run(context.Background(), "/bin/echo", "package:$HOME;*")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "package:$HOME;*" {
		t.Errorf("argument was altered: %q", result.Stdout)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	e := NewUnrestricted()

	result, err := e.Run(context.Background(), "/bin/sh", "-c", "exit 4")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if result.ExitCode != 4 {
		t.Errorf("exit code = %d, want 4", result.ExitCode)
	}
}

func TestRun_Timeout(t *testing.T) {
	e := NewUnrestricted()
	e.Timeout = 100 * time.Millisecond

	result, err := e.Run(context.Background(), "/bin/sh", "-c", "sleep 10")
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if !result.TimedOut || result.ExitCode != -1 {
		t.Errorf("expected timeout result, got %+v", result)
	}
}

func TestRun_DisallowedTool(t *testing.T) {
	e := New()

	if _, err := e.Run(context.Background(), "/bin/sh", "-c", "true"); err == nil {
		t.Fatal("expected allowlist rejection")
	}
}

func TestRun_MissingBinary(t *testing.T) {
	e := NewUnrestricted()

	if _, err := e.Run(context.Background(), "/nonexistent/tool"); err == nil {
		t.Fatal("expected start error")
	}
}
