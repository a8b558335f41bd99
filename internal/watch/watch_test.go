package watch

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingChecker struct {
	calls  atomic.Int32
	result atomic.Bool
}

func (c *countingChecker) Check(context.Context) bool {
	c.calls.Add(1)
	return c.result.Load()
}

func TestValidate(t *testing.T) {
	valid := []string{"*/5 * * * *", "@every 10m", "@hourly", "0 3 * * 1"}
	for _, expr := range valid {
		if err := Validate(expr); err != nil {
			t.Errorf("Validate(%q) failed: %v", expr, err)
		}
	}

	invalid := []string{"", "every minute", "* * * *", "0 0 0 * * *"}
	for _, expr := range invalid {
		if err := Validate(expr); err == nil {
			t.Errorf("Validate(%q) should fail", expr)
		}
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New("not a schedule", &countingChecker{}, nopLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatcher_State(t *testing.T) {
	w, err := New("@hourly", &countingChecker{}, nopLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, known := w.State(); known {
		t.Fatal("state must be unknown before the first probe")
	}

	w.observe(true)
	if available, known := w.State(); !available || !known {
		t.Errorf("State() = %v, %v after available probe", available, known)
	}

	w.observe(false)
	if available, _ := w.State(); available {
		t.Error("state did not follow the latest probe")
	}
}

func TestWatcher_RunProbesOnSchedule(t *testing.T) {
	checker := &countingChecker{}
	checker.result.Store(true)

	w, err := New("@every 1s", checker, nopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for checker.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done

	if checker.calls.Load() == 0 {
		t.Fatal("probe never ran")
	}

	// Shutdown waits for an in-flight probe to record its result.
	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	if available, known := w.State(); !available || !known {
		t.Errorf("State() = %v, %v, want true, true", available, known)
	}
}
