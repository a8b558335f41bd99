// Package shutdown stops daemon components in reverse registration order,
// so a transport registered after the journal stops before the journal
// closes underneath it.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components that take part in shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain function to Shutdowner.
type Func func(ctx context.Context) error

// Shutdown calls f.
func (f Func) Shutdown(ctx context.Context) error { return f(ctx) }

type entry struct {
	name string
	s    Shutdowner
}

// Coordinator runs registered Shutdowners last-in first-out.
type Coordinator struct {
	entries []entry
	logger  *slog.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{logger: logger.With(slog.String("component", "shutdown"))}
}

// Register appends a component. Nil components are ignored.
func (c *Coordinator) Register(name string, s Shutdowner) {
	if s == nil {
		return
	}
	c.entries = append(c.entries, entry{name: name, s: s})
}

// Len returns the number of registered components.
func (c *Coordinator) Len() int {
	return len(c.entries)
}

// Shutdown stops every component, newest first. A failing component does not
// stop the rest; all failures are joined. Once ctx expires the remaining
// components are skipped and reported.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	var errs []error

	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]

		if err := ctx.Err(); err != nil {
			c.logger.Error("shutdown deadline exceeded", "skipped", e.name)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}

		start := time.Now()
		if err := e.s.Shutdown(ctx); err != nil {
			c.logger.Error("component shutdown failed", "name", e.name, "duration", time.Since(start), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		c.logger.Info("component stopped", "name", e.name, "duration", time.Since(start))
	}

	return errors.Join(errs...)
}
