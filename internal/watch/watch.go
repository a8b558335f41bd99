// Package watch runs the privilege probe on a cron schedule and logs when
// elevation becomes available or goes away. It keeps only the last observed
// state; every probe still spawns a fresh shell.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Checker is the privilege probe.
type Checker interface {
	Check(ctx context.Context) bool
}

// NewParser returns a parser for standard 5-field cron expressions and
// descriptors such as @every 10m or @hourly.
func NewParser() cron.Parser {
	return cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
}

// Validate checks that expression is a valid schedule.
func Validate(expression string) error {
	_, err := NewParser().Parse(expression)
	return err
}

// Watcher probes privilege on a schedule.
type Watcher struct {
	cron    *cron.Cron
	checker Checker
	logger  *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	known     bool
	available bool
}

// New creates a watcher that calls checker on schedule.
func New(schedule string, checker Checker, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		checker: checker,
		logger:  logger.With(slog.String("component", "watch")),
		ctx:     context.Background(),
	}
	w.cron = cron.New(cron.WithParser(NewParser()))
	if _, err := w.cron.AddFunc(schedule, w.tick); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Run starts the schedule and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.logger.Info("privilege watch started")
	w.cron.Start()
	<-ctx.Done()
	w.cron.Stop()
	w.logger.Info("privilege watch stopping")
}

// Shutdown stops the schedule and waits for a running probe to finish.
func (w *Watcher) Shutdown(ctx context.Context) error {
	stopped := w.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the last observed availability. known is false until the
// first probe has completed.
func (w *Watcher) State() (available, known bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.available, w.known
}

func (w *Watcher) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()

	w.observe(w.checker.Check(ctx))
}

// observe records one probe result and logs transitions.
func (w *Watcher) observe(available bool) {
	w.mu.Lock()
	changed := !w.known || w.available != available
	w.known = true
	w.available = available
	w.mu.Unlock()

	if !changed {
		w.logger.Debug("privilege unchanged", slog.Bool("available", available))
		return
	}
	if available {
		w.logger.Info("privileged shell available")
	} else {
		w.logger.Warn("privileged shell unavailable")
	}
}
