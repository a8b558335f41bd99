// Package systemd reports bridge lifecycle to systemd for Type=notify units
// and keeps the watchdog fed while the bridge is healthy. Every call is a
// no-op when NOTIFY_SOCKET is unset, so the daemon runs unchanged outside
// systemd (adb shell, tests).
package systemd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify and watchdogInterval are swapped out in tests.
var (
	sdNotify         = daemon.SdNotify
	watchdogInterval = daemon.SdWatchdogEnabled
)

// Notifier sends lifecycle notifications on behalf of one daemon.
type Notifier struct {
	logger   *slog.Logger
	notify   func(unsetEnv bool, state string) (bool, error)
	interval func(unsetEnv bool) (time.Duration, error)
}

// NewNotifier creates a Notifier that logs through logger.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger:   logger.With(slog.String("component", "systemd")),
		notify:   sdNotify,
		interval: watchdogInterval,
	}
}

// Ready sends READY=1 together with a STATUS line. It reports whether the
// notification was delivered.
func (n *Notifier) Ready(status string) bool {
	return n.send("ready", daemon.SdNotifyReady+"\nSTATUS="+status)
}

// Stopping sends STOPPING=1.
func (n *Notifier) Stopping() bool {
	return n.send("stopping", daemon.SdNotifyStopping)
}

// Status updates the unit's free-form status line.
func (n *Notifier) Status(status string) bool {
	return n.send("status", "STATUS="+status)
}

func (n *Notifier) send(kind, state string) bool {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("systemd notification failed", "kind", kind, "error", err)
		return false
	}
	if !sent {
		n.logger.Debug("systemd notification skipped, no notify socket", "kind", kind)
	}
	return sent
}

// HealthFunc reports whether the daemon is healthy enough to pet the watchdog.
type HealthFunc func() bool

// Watchdog starts pinging systemd at half the configured WatchdogSec until
// ctx is done. It returns false when no watchdog is configured. A failing
// health check skips the ping, which lets systemd restart the unit.
func (n *Notifier) Watchdog(ctx context.Context, healthy HealthFunc) bool {
	interval, err := n.interval(false)
	if err != nil || interval <= 0 {
		n.logger.Debug("watchdog disabled", "error", err)
		return false
	}

	every := interval / 2
	n.logger.Info("systemd watchdog enabled", "interval", interval, "ping_every", every)
	go n.watch(ctx, every, healthy)
	return true
}

func (n *Notifier) watch(ctx context.Context, every time.Duration, healthy HealthFunc) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !healthy() {
				n.logger.Warn("bridge unhealthy, withholding watchdog ping")
				continue
			}
			n.send("watchdog", daemon.SdNotifyWatchdog)
		}
	}
}

// UnderSystemd reports whether a notify socket was handed to the process.
func UnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
