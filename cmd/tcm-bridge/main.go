// tcm-bridge is the host-side daemon of the tcm app.
//
// It serves the app's UI layer over a Unix socket (and optionally NATS):
// opening system pickers, installing packages through the consent flow or
// silently through su, and probing for root.
//
// Lifecycle:
//  1. Load configuration (-config, default /etc/tcm-bridge/config.yaml)
//  2. Build components and bind the socket
//  3. Connect NATS and start the privilege watch if configured
//  4. Notify systemd, start the watchdog
//  5. On SIGTERM/SIGINT, stop components newest first
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/and2long/tcm/bridge/internal/app"
	"github.com/and2long/tcm/bridge/internal/bridge"
	"github.com/and2long/tcm/bridge/internal/config"
	"github.com/and2long/tcm/bridge/internal/logging"
	"github.com/and2long/tcm/bridge/internal/shutdown"
	"github.com/and2long/tcm/bridge/internal/systemd"
	"github.com/and2long/tcm/bridge/internal/version"
	"github.com/and2long/tcm/bridge/internal/watch"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	writeConfig := flag.Bool("write-config", false, "write the effective configuration to -config and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("tcm-bridge"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if *writeConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("configuration written to %s\n", *configPath)
		return
	}

	logger := logging.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("bridge starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("socket", cfg.SocketPath),
		slog.String("shell", cfg.Shell),
		slog.Bool("nats_enabled", cfg.NATSEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}

	coordinator := shutdown.NewCoordinator(logger)
	coordinator.Register("app", a)

	server := bridge.NewServer(cfg.SocketPath, a.Handler, logger)
	if err := server.Listen(); err != nil {
		a.Close()
		return err
	}
	coordinator.Register("socket", server)
	go func() {
		if err := server.Serve(ctx); err != nil {
			logger.Error("socket server stopped", "error", err)
		}
	}()

	if cfg.NATSEnabled() {
		nats := bridge.NewNATSServer(bridge.NATSConfig{
			Servers:  cfg.NATSServers,
			NKeySeed: cfg.NATSNKeySeed,
			Subject:  cfg.NATSSubject,
			Name:     "tcm-bridge",
		}, a.Handler, logger)

		if err := nats.Start(ctx); err != nil {
			logger.Warn("NATS unavailable, serving the socket only", "error", err)
		} else {
			a.SetPublisher(nats)
			coordinator.Register("nats", shutdown.Func(func(ctx context.Context) error {
				a.SetPublisher(nil)
				return nats.Shutdown(ctx)
			}))
		}
	}

	if cfg.ProbeSchedule != "" {
		w, err := watch.New(cfg.ProbeSchedule, a.Probe, logger)
		if err != nil {
			logger.Warn("privilege watch disabled", "error", err)
		} else {
			coordinator.Register("watch", w)
			go w.Run(ctx)
		}
	}

	notifier := systemd.NewNotifier(logger)
	notifier.Ready("serving " + cfg.SocketPath)
	client := bridge.NewClient(cfg.SocketPath)
	notifier.Watchdog(ctx, client.Available)
	logger.Info("bridge ready")

	<-ctx.Done()
	logger.Info("shutdown signal received")
	notifier.Stopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
