// Package probe checks whether the privileged shell is reachable.
// A probe starts the shell, sends only the exit directive and treats a zero
// exit code as proof that elevation is available.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/and2long/tcm/bridge/internal/rootshell"
)

// Observer is notified after every probe.
type Observer func(exitCode int, duration time.Duration, err error)

// Probe is a stateless privilege check.
type Probe struct {
	spawner  rootshell.Spawner
	logger   *slog.Logger
	observer Observer
}

// New creates a probe that spawns shells with spawner.
func New(spawner rootshell.Spawner, logger *slog.Logger) *Probe {
	return &Probe{
		spawner: spawner,
		logger:  logger.With(slog.String("component", "probe")),
	}
}

// Observe registers fn to receive every probe result. It must be called
// before the probe is used concurrently.
func (p *Probe) Observe(fn Observer) {
	p.observer = fn
}

// Attempt runs the shell to completion and returns its exit code.
func (p *Probe) Attempt(ctx context.Context) (int, error) {
	code := -1
	err := rootshell.Run(ctx, p.spawner, p.logger, func(s *rootshell.Session) error {
		if err := s.Exit(); err != nil {
			return err
		}
		if err := s.CloseInput(); err != nil {
			return err
		}
		c, err := s.Wait()
		if err != nil {
			return err
		}
		code = c
		return nil
	})
	return code, err
}

// Check reports whether the privileged shell exits with code 0. Every fault
// is logged and reported as false.
func (p *Probe) Check(ctx context.Context) bool {
	started := time.Now()
	code, err := p.Attempt(ctx)
	if p.observer != nil {
		p.observer(code, time.Since(started), err)
	}
	if err != nil {
		p.logger.Warn("privilege check failed",
			slog.String("kind", rootshell.Kind(err)),
			slog.String("error", err.Error()),
		)
		return false
	}
	p.logger.Debug("privilege check finished", slog.Int("exit_code", code))
	return code == 0
}
