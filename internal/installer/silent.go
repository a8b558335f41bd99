// Package installer installs application packages on the device.
//
// Silent drives the privileged shell to run the package manager without user
// interaction and classifies the result from the shell's diagnostic output.
// Common is the consent-based path: it hands the package to the system
// installer UI after checking that the package exists and that installs from
// this source are allowed.
package installer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/and2long/tcm/bridge/internal/rootshell"
)

// FailureMarker in the package manager's diagnostics marks a failed install.
// The match is case-sensitive and may occur anywhere in the output.
const FailureMarker = "Failure"

// ErrEmptyPath is returned when no package path is given.
var ErrEmptyPath = errors.New("package path is empty")

// Command returns the package-manager invocation that installs, or replaces,
// the package at path.
func Command(path string) string {
	return "pm install -r " + path
}

// Classify reports whether diagnostics describe a successful install.
func Classify(diagnostics string) bool {
	return !strings.Contains(diagnostics, FailureMarker)
}

// Outcome describes one silent install attempt.
type Outcome struct {
	// Installed is true iff Diagnostics does not contain FailureMarker.
	Installed bool
	// ExitCode is the shell's exit code. It reflects the shell session, not
	// the install, and plays no part in classification.
	ExitCode int
	// Diagnostics is the shell's stderr with line breaks removed.
	Diagnostics string
	// Duration covers spawn through release.
	Duration time.Duration
}

// Observer is notified after every silent install attempt.
type Observer func(path string, out *Outcome, err error)

// Silent installs packages through the privileged shell.
type Silent struct {
	spawner  rootshell.Spawner
	logger   *slog.Logger
	observer Observer
}

// NewSilent creates a silent installer that spawns shells with spawner.
func NewSilent(spawner rootshell.Spawner, logger *slog.Logger) *Silent {
	return &Silent{
		spawner: spawner,
		logger:  logger.With(slog.String("component", "silent-installer")),
	}
}

// Observe registers fn to receive every attempt. It must be called before
// the installer is used concurrently.
func (s *Silent) Observe(fn Observer) {
	s.observer = fn
}

// Attempt runs one install and returns its outcome. Faults from spawning,
// stream i/o or waiting are returned as errors wrapping the rootshell kinds.
func (s *Silent) Attempt(ctx context.Context, path string) (*Outcome, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	out := &Outcome{ExitCode: -1}
	started := time.Now()
	err := rootshell.Run(ctx, s.spawner, s.logger, func(sess *rootshell.Session) error {
		if err := sess.WriteLine(Command(path)); err != nil {
			return err
		}
		if err := sess.Exit(); err != nil {
			return err
		}
		if err := sess.CloseInput(); err != nil {
			return err
		}
		code, err := sess.Wait()
		if err != nil {
			return err
		}
		out.ExitCode = code

		diag, err := sess.ReadAllDiagnostics()
		if err != nil {
			return err
		}
		out.Diagnostics = diag
		out.Installed = Classify(diag)
		return nil
	})
	out.Duration = time.Since(started)

	if err != nil {
		return nil, err
	}
	return out, nil
}

// Install installs the package at path and reports success. Every fault is
// logged and reported as false.
func (s *Silent) Install(ctx context.Context, path string) bool {
	out, err := s.Attempt(ctx, path)
	if s.observer != nil {
		s.observer(path, out, err)
	}
	if err != nil {
		s.logger.Error("silent install failed",
			slog.String("path", path),
			slog.String("kind", rootshell.Kind(err)),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("silent install finished",
		slog.String("path", path),
		slog.Bool("installed", out.Installed),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("duration", out.Duration),
	)
	s.logger.Debug("install diagnostics", slog.String("output", out.Diagnostics))
	return out.Installed
}
