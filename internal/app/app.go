// Package app assembles the bridge from configuration: the privileged
// shell backend, installers, probe, launcher, journal and dispatcher. Both
// the daemon and the client's -local mode build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and2long/tcm/bridge/internal/config"
	"github.com/and2long/tcm/bridge/internal/consent"
	"github.com/and2long/tcm/bridge/internal/dispatch"
	"github.com/and2long/tcm/bridge/internal/executor"
	"github.com/and2long/tcm/bridge/internal/fetch"
	"github.com/and2long/tcm/bridge/internal/installer"
	"github.com/and2long/tcm/bridge/internal/intent"
	"github.com/and2long/tcm/bridge/internal/journal"
	"github.com/and2long/tcm/bridge/internal/probe"
	"github.com/and2long/tcm/bridge/internal/rootshell"
	"github.com/and2long/tcm/bridge/internal/sysinfo"
)

// pruneEvery is how many journal appends pass between prunes.
const pruneEvery = 50

// Publisher receives journal entries as events, e.g. the NATS transport.
type Publisher interface {
	Publish(kind string, v any) error
}

// App holds the wired components.
type App struct {
	Config  *config.Config
	Handler *dispatch.Handler
	Silent  *installer.Silent
	Probe   *probe.Probe
	Journal *journal.Journal

	logger *slog.Logger

	mu        sync.Mutex
	publisher Publisher
	appends   int
}

// Build wires an App using the real su backend.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	return BuildWithSpawner(cfg, rootshell.NewExecSpawner(cfg.Shell, cfg.ShellArgs...), logger)
}

// BuildWithSpawner wires an App around spawner.
func BuildWithSpawner(cfg *config.Config, spawner rootshell.Spawner, logger *slog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		logger: logger.With(slog.String("component", "app")),
	}

	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal %s: %w", cfg.JournalPath, err)
		}
		a.Journal = j
	}

	a.Silent = installer.NewSilent(spawner, logger)
	a.Silent.Observe(a.recordInstall)
	a.Probe = probe.New(spawner, logger)
	a.Probe.Observe(a.recordProbe)

	exec := executor.New()
	launcher := intent.NewLauncher(exec, logger)
	common := installer.NewCommon(installer.CommonConfig{
		PackageName: cfg.PackageName,
		CacheDir:    cfg.CacheDir,
		Authority:   cfg.FileProviderAuthority,
	}, installer.FileChecker{}, consent.NewAppOps(exec, cfg.PackageName), launcher, logger)

	deps := dispatch.Deps{
		Opener:      launcher,
		Silent:      a.Silent,
		Common:      common,
		Probe:       a.Probe,
		Fetcher:     fetch.New(cfg.DownloadRetries, logger),
		HostInfo:    sysinfo.Collect,
		PackagePath: cfg.PackagePath(),
	}
	if a.Journal != nil {
		deps.History = a.Journal
	}
	a.Handler = dispatch.New(deps, logger)

	return a, nil
}

// SetPublisher forwards every journal entry to p. Pass nil to stop.
func (a *App) SetPublisher(p Publisher) {
	a.mu.Lock()
	a.publisher = p
	a.mu.Unlock()
}

func (a *App) recordInstall(path string, out *installer.Outcome, err error) {
	e := &journal.Entry{Op: journal.OpSilentInstall, Path: path, ExitCode: -1}
	if out != nil {
		e.Success = out.Installed
		e.ExitCode = out.ExitCode
		e.Diagnostics = out.Diagnostics
		e.DurationMs = out.Duration.Milliseconds()
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.record(e)
}

func (a *App) recordProbe(code int, d time.Duration, err error) {
	e := &journal.Entry{
		Op:         journal.OpProbe,
		Success:    err == nil && code == 0,
		ExitCode:   code,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.record(e)
}

// record journals e and publishes it. Failures are logged; they never
// affect the operation that produced e.
func (a *App) record(e *journal.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Journal != nil {
		if err := a.Journal.Append(e); err != nil {
			a.logger.Warn("failed to journal entry", "op", e.Op, "error", err)
		}
		a.appends++
		if a.appends%pruneEvery == 0 {
			if n, err := a.Journal.Prune(a.Config.JournalMax); err != nil {
				a.logger.Warn("failed to prune journal", "error", err)
			} else if n > 0 {
				a.logger.Debug("pruned journal", "removed", n)
			}
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(e.Op, e); err != nil {
			a.logger.Warn("failed to publish entry", "op", e.Op, "error", err)
		}
	}
}

// Shutdown closes the journal. It satisfies shutdown.Shutdowner.
func (a *App) Shutdown(context.Context) error {
	return a.Close()
}

// Close releases the journal.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Journal == nil {
		return nil
	}
	err := a.Journal.Close()
	a.Journal = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
