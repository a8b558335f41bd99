package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinator_ReverseOrder(t *testing.T) {
	var order []string
	c := NewCoordinator(nopLogger())
	for _, name := range []string{"journal", "socket", "nats"} {
		name := name
		c.Register(name, Func(func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}
	c.Register("nil", nil)

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if want := []string{"nats", "socket", "journal"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCoordinator_JoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0

	c := NewCoordinator(nopLogger())
	c.Register("a", Func(func(context.Context) error { ran++; return errA }))
	c.Register("ok", Func(func(context.Context) error { ran++; return nil }))
	c.Register("b", Func(func(context.Context) error { ran++; return errB }))

	err := c.Shutdown(context.Background())
	if ran != 3 {
		t.Errorf("ran %d components, want 3", ran)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Shutdown() error = %v, want both failures", err)
	}
}

func TestCoordinator_ExpiredContextSkips(t *testing.T) {
	ran := false
	c := NewCoordinator(nopLogger())
	c.Register("late", Func(func(context.Context) error { ran = true; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Shutdown(ctx)
	if ran {
		t.Error("component ran after context expired")
	}
	if !errors.Is(err, context.Canceled) || !strings.Contains(err.Error(), "late") {
		t.Errorf("Shutdown() error = %v", err)
	}
}
