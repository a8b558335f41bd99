package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/and2long/tcm/bridge/internal/rootshell"
	"github.com/and2long/tcm/bridge/internal/rootshell/rootshelltest"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheck_ExitCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{1, false},
		{255, false},
		{-1, false},
	}

	for _, tt := range tests {
		spawner := &rootshelltest.Spawner{ExitCode: tt.code}
		p := New(spawner, nopLogger())

		if got := p.Check(context.Background()); got != tt.want {
			t.Errorf("Check() with exit %d = %v, want %v", tt.code, got, tt.want)
		}
		if got := spawner.Last().Written(); got != "exit\n" {
			t.Errorf("written = %q, want only the exit directive", got)
		}
	}
}

func TestCheck_IgnoresDiagnostics(t *testing.T) {
	spawner := &rootshelltest.Spawner{ExitCode: 0, Diagnostics: "Failure"}
	if !New(spawner, nopLogger()).Check(context.Background()) {
		t.Error("probe must not classify diagnostics")
	}
}

func TestCheck_FaultsReturnFalse(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		spawner  *rootshelltest.Spawner
		wantKind string
	}{
		{"spawn", &rootshelltest.Spawner{SpawnErr: boom}, "spawn"},
		{"write", &rootshelltest.Spawner{WriteErr: boom}, "io"},
		{"wait", &rootshelltest.Spawner{WaitErr: boom}, "wait"},
	}

	for _, tt := range tests {
		spawner := tt.spawner
		t.Run(tt.name, func(t *testing.T) {
			p := New(spawner, nopLogger())

			var observed error
			p.Observe(func(code int, d time.Duration, err error) {
				observed = err
			})

			if p.Check(context.Background()) {
				t.Fatal("expected false on fault")
			}
			if got := rootshell.Kind(observed); got != tt.wantKind {
				t.Errorf("observed kind = %q, want %q", got, tt.wantKind)
			}
			if spawner.Opened() != spawner.Released() {
				t.Errorf("opened %d resources, released %d", spawner.Opened(), spawner.Released())
			}
		})
	}
}

func TestCheck_Idempotent(t *testing.T) {
	spawner := &rootshelltest.Spawner{ExitCode: 0}
	p := New(spawner, nopLogger())

	first := p.Check(context.Background())
	second := p.Check(context.Background())
	if first != second {
		t.Errorf("consecutive checks differ: %v then %v", first, second)
	}
	if len(spawner.Processes()) != 2 {
		t.Errorf("expected a fresh shell per check, got %d spawns", len(spawner.Processes()))
	}
}

func TestCheck_RealShell(t *testing.T) {
	if !New(rootshell.NewExecSpawner("/bin/sh"), nopLogger()).Check(context.Background()) {
		t.Error("expected /bin/sh to exit cleanly")
	}
	if New(rootshell.NewExecSpawner("/bin/sh", "-c", "exit 1"), nopLogger()).Check(context.Background()) {
		t.Error("expected exit 1 to report no privilege")
	}
	if New(rootshell.NewExecSpawner("/nonexistent/su"), nopLogger()).Check(context.Background()) {
		t.Error("expected missing shell to report no privilege")
	}
}

func TestCheck_BackgroundChildKeepsStderrOpen(t *testing.T) {
	spawner := &rootshell.ExecSpawner{
		Shell:     "/bin/sh",
		Args:      []string{"-c", "sleep 3 & exec sh"},
		WaitDelay: 100 * time.Millisecond,
	}
	if !New(spawner, nopLogger()).Check(context.Background()) {
		t.Error("shell exiting 0 with a lingering child must report privilege")
	}
}

func TestCheck_ShellIgnoringExitSeesEndOfInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := New(rootshell.NewExecSpawner("/bin/sh", "-c", "cat >/dev/null"), nopLogger())
	code, err := p.Attempt(ctx)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}
