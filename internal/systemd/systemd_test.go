package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	sent   bool
	err    error
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.sent, r.err
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func install(t *testing.T, r *recorder, interval time.Duration, intervalErr error) {
	t.Helper()
	origNotify, origInterval := sdNotify, watchdogInterval
	sdNotify = r.notify
	watchdogInterval = func(bool) (time.Duration, error) { return interval, intervalErr }
	t.Cleanup(func() {
		sdNotify, watchdogInterval = origNotify, origInterval
	})
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_ReadyAndStopping(t *testing.T) {
	r := &recorder{sent: true}
	install(t, r, 0, nil)
	n := NewNotifier(nopLogger())

	if !n.Ready("listening") {
		t.Error("Ready() = false, want true")
	}
	if !n.Stopping() {
		t.Error("Stopping() = false, want true")
	}

	states := r.snapshot()
	if len(states) != 2 {
		t.Fatalf("got %d notifications, want 2", len(states))
	}
	if states[0] != "READY=1\nSTATUS=listening" {
		t.Errorf("ready state = %q", states[0])
	}
	if states[1] != "STOPPING=1" {
		t.Errorf("stopping state = %q", states[1])
	}
}

func TestNotifier_SendFailure(t *testing.T) {
	install(t, &recorder{err: errors.New("socket gone")}, 0, nil)
	if NewNotifier(nopLogger()).Status("x") {
		t.Error("Status() = true on error")
	}
}

func TestNotifier_WatchdogDisabled(t *testing.T) {
	install(t, &recorder{}, 0, nil)
	if NewNotifier(nopLogger()).Watchdog(context.Background(), func() bool { return true }) {
		t.Error("Watchdog() = true with zero interval")
	}
}

func TestNotifier_WatchdogPings(t *testing.T) {
	r := &recorder{sent: true}
	install(t, r, 20*time.Millisecond, nil)

	var mu sync.Mutex
	healthy := false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(nopLogger())
	if !n.Watchdog(ctx, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return healthy
	}) {
		t.Fatal("Watchdog() = false")
	}

	time.Sleep(50 * time.Millisecond)
	if len(r.snapshot()) != 0 {
		t.Fatal("pinged while unhealthy")
	}

	mu.Lock()
	healthy = true
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range r.snapshot() {
			if strings.HasPrefix(s, "WATCHDOG=1") {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no watchdog ping after becoming healthy")
}
