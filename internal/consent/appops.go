// Package consent decides whether the app may ask the user to install
// packages from its own source. Devices before API level 26 grant this
// implicitly. Later ones gate it behind the REQUEST_INSTALL_PACKAGES app-op,
// which the user toggles on the "install unknown apps" settings page.
package consent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/and2long/tcm/bridge/internal/executor"
)

// MinConsentSDK is the first API level that requires per-source consent.
const MinConsentSDK = 26

const installOp = "REQUEST_INSTALL_PACKAGES"

// ErrNoPackage is returned when no package name is configured.
var ErrNoPackage = errors.New("package name is not configured")

// Runner executes a helper tool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*executor.Result, error)
}

// AppOps reads install consent from the app-ops service.
type AppOps struct {
	runner      Runner
	packageName string
}

// NewAppOps creates a consent checker for packageName.
func NewAppOps(runner Runner, packageName string) *AppOps {
	return &AppOps{runner: runner, packageName: packageName}
}

// SDKLevel returns the device API level from ro.build.version.sdk.
func (a *AppOps) SDKLevel(ctx context.Context) (int, error) {
	result, err := a.runner.Run(ctx, "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, fmt.Errorf("read sdk level: %w", err)
	}
	level, err := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if err != nil {
		return 0, fmt.Errorf("parse sdk level %q: %w", strings.TrimSpace(result.Stdout), err)
	}
	return level, nil
}

// CanRequestInstalls reports whether the app may launch the system installer.
func (a *AppOps) CanRequestInstalls(ctx context.Context) (bool, error) {
	level, err := a.SDKLevel(ctx)
	if err != nil {
		return false, err
	}
	if level < MinConsentSDK {
		return true, nil
	}
	if a.packageName == "" {
		return false, ErrNoPackage
	}

	result, err := a.runner.Run(ctx, "cmd", "appops", "get", a.packageName, installOp)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", installOp, err)
	}
	if result.ExitCode != 0 {
		return false, fmt.Errorf("read %s: appops exited %d: %s", installOp, result.ExitCode, strings.TrimSpace(result.Output()))
	}
	return ParseMode(result.Stdout) == "allow", nil
}

// ParseMode extracts the REQUEST_INSTALL_PACKAGES mode from `cmd appops get`
// output, e.g. "REQUEST_INSTALL_PACKAGES: allow; time=+2h" yields "allow".
// It returns "default" when the op is not listed.
func ParseMode(output string) string {
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), installOp+":")
		if !ok {
			continue
		}
		mode, _, _ := strings.Cut(rest, ";")
		return strings.TrimSpace(mode)
	}
	return "default"
}
