package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/and2long/tcm/bridge/internal/intent"
)

// Messages shown to the user on the consent-based install path.
const (
	MsgPackageMissing      = "package does not exist"
	MsgAllowUnknownSources = "allow installing apps from unknown sources"
	msgInstallFailed       = "install failed: %v"
)

// ProviderRoot is the file-provider path name that maps to the cache dir.
const ProviderRoot = "cache"

// PackageChecker reports whether a package file is present.
type PackageChecker interface {
	Exists(path string) bool
}

// FileChecker checks the local filesystem for a regular file.
type FileChecker struct{}

// Exists reports whether path names a regular file.
func (FileChecker) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ConsentChecker reports whether the app may ask the user to install
// packages from its own source.
type ConsentChecker interface {
	CanRequestInstalls(ctx context.Context) (bool, error)
}

// Opener launches a system screen.
type Opener interface {
	Open(ctx context.Context, in intent.Intent) error
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(msg string)

// Notify calls f(msg).
func (f NotifierFunc) Notify(msg string) { f(msg) }

// CommonConfig holds the identity used to build package URIs.
type CommonConfig struct {
	// PackageName is the application id, used for the settings redirect.
	PackageName string
	// CacheDir is the directory the file provider exposes as ProviderRoot.
	CacheDir string
	// Authority is the file-provider authority. When empty, file:// URIs
	// are used instead of content:// URIs.
	Authority string
}

// Common installs packages through the system installer UI.
type Common struct {
	cfg     CommonConfig
	checker PackageChecker
	consent ConsentChecker
	opener  Opener
	logger  *slog.Logger
}

// NewCommon creates a consent-based installer.
func NewCommon(cfg CommonConfig, checker PackageChecker, consent ConsentChecker, opener Opener, logger *slog.Logger) *Common {
	return &Common{
		cfg:     cfg,
		checker: checker,
		consent: consent,
		opener:  opener,
		logger:  logger.With(slog.String("component", "common-installer")),
	}
}

// Install hands the package at pkgPath to the system installer. When the
// package is missing or installs from this source are not yet allowed, the
// user is told through n and, for the latter, sent to the settings page
// where consent is granted. Nothing is returned: the outcome belongs to the
// system installer.
func (c *Common) Install(ctx context.Context, pkgPath string, n Notifier) {
	if !c.checker.Exists(pkgPath) {
		c.logger.Warn("package not found", slog.String("path", pkgPath))
		n.Notify(MsgPackageMissing)
		return
	}

	allowed, err := c.consent.CanRequestInstalls(ctx)
	if err != nil {
		c.fail(n, fmt.Errorf("check install consent: %w", err))
		return
	}
	if !allowed {
		c.logger.Info("install consent missing, opening settings",
			slog.String("package", c.cfg.PackageName),
		)
		n.Notify(MsgAllowUnknownSources)
		settings := intent.Intent{Kind: intent.UnknownSources, URI: intent.PackageURI(c.cfg.PackageName)}
		if err := c.opener.Open(ctx, settings); err != nil {
			c.fail(n, err)
		}
		return
	}

	view := intent.Intent{Kind: intent.ViewPackage, URI: PackageURI(pkgPath, c.cfg.CacheDir, c.cfg.Authority)}
	if err := c.opener.Open(ctx, view); err != nil {
		c.fail(n, err)
		return
	}
	c.logger.Info("package handed to system installer", slog.String("uri", view.URI))
}

func (c *Common) fail(n Notifier, err error) {
	c.logger.Error("install apk failed", slog.String("error", err.Error()))
	n.Notify(fmt.Sprintf(msgInstallFailed, err))
}

// PackageURI returns the URI the system installer reads pkgPath from. A
// package inside cacheDir is exposed as content://<authority>/cache/<rel>
// when an authority is set. Anything else falls back to a file:// URI.
func PackageURI(pkgPath, cacheDir, authority string) string {
	if authority != "" && cacheDir != "" {
		rel, err := filepath.Rel(cacheDir, pkgPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
			return "content://" + authority + "/" + path.Join(ProviderRoot, filepath.ToSlash(rel))
		}
	}
	return "file://" + filepath.ToSlash(pkgPath)
}
