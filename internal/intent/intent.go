// Package intent opens system screens on the device through the activity
// manager (`am start`). Launches are fire-and-forget: Open returns once the
// activity manager has accepted or rejected the request.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/and2long/tcm/bridge/internal/executor"
)

// Kind selects which system screen to open.
type Kind int

const (
	// FileManager opens the document picker for any openable file.
	FileManager Kind = iota
	// HomeChooser opens the home-screen launcher.
	HomeChooser
	// Settings opens the system settings app.
	Settings
	// UnknownSources opens the "install unknown apps" page for a package.
	UnknownSources
	// ViewPackage hands a package archive to the system installer.
	ViewPackage
)

// PackageArchiveType is the MIME type of an installable package.
const PackageArchiveType = "application/vnd.android.package-archive"

// flagNewTask is FLAG_ACTIVITY_NEW_TASK.
const flagNewTask = "0x10000000"

// ErrMissingURI is returned for kinds that need a data URI.
var ErrMissingURI = errors.New("intent requires a data uri")

func (k Kind) String() string {
	switch k {
	case FileManager:
		return "file_manager"
	case HomeChooser:
		return "home_chooser"
	case Settings:
		return "settings"
	case UnknownSources:
		return "unknown_sources"
	case ViewPackage:
		return "view_package"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Intent is a request to open a system screen. URI is required for
// UnknownSources and ViewPackage and ignored otherwise.
type Intent struct {
	Kind Kind
	URI  string
}

// PackageURI returns the package: URI that scopes settings pages to an app.
func PackageURI(packageName string) string {
	return "package:" + packageName
}

// Args renders the `am start` arguments for the intent.
func (i Intent) Args() ([]string, error) {
	switch i.Kind {
	case FileManager:
		return []string{
			"-a", "android.intent.action.GET_CONTENT",
			"-t", "*/*",
			"-c", "android.intent.category.OPENABLE",
		}, nil
	case HomeChooser:
		return []string{
			"-a", "android.intent.action.MAIN",
			"-c", "android.intent.category.HOME",
			"-f", flagNewTask,
		}, nil
	case Settings:
		return []string{"-a", "android.settings.SETTINGS"}, nil
	case UnknownSources:
		if i.URI == "" {
			return nil, ErrMissingURI
		}
		return []string{
			"-a", "android.settings.MANAGE_UNKNOWN_APP_SOURCES",
			"-d", i.URI,
			"-f", flagNewTask,
		}, nil
	case ViewPackage:
		if i.URI == "" {
			return nil, ErrMissingURI
		}
		return []string{
			"-a", "android.intent.action.VIEW",
			"-d", i.URI,
			"-t", PackageArchiveType,
			"--grant-read-uri-permission",
			"-f", flagNewTask,
		}, nil
	default:
		return nil, fmt.Errorf("unknown intent kind %d", int(i.Kind))
	}
}

// Runner executes a helper tool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*executor.Result, error)
}

// LaunchError is returned when the activity manager rejects an intent.
type LaunchError struct {
	Kind    Kind
	Message string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %s", e.Kind, e.Message)
}

// Launcher opens intents with `am start`.
type Launcher struct {
	runner Runner
	logger *slog.Logger
}

// NewLauncher creates a launcher that runs am through runner.
func NewLauncher(runner Runner, logger *slog.Logger) *Launcher {
	return &Launcher{
		runner: runner,
		logger: logger.With(slog.String("component", "intent")),
	}
}

// Open starts the activity for in. The activity manager reports most
// failures on stdout with an "Error" prefix and a zero exit code, so both
// streams are checked.
func (l *Launcher) Open(ctx context.Context, in Intent) error {
	args, err := in.Args()
	if err != nil {
		return err
	}

	result, err := l.runner.Run(ctx, "am", append([]string{"start"}, args...)...)
	if err != nil {
		return fmt.Errorf("launch %s: %w", in.Kind, err)
	}

	output := strings.TrimSpace(result.Output())
	if result.TimedOut {
		return &LaunchError{Kind: in.Kind, Message: "activity manager timed out"}
	}
	if result.ExitCode != 0 || strings.Contains(output, "Error") {
		return &LaunchError{Kind: in.Kind, Message: output}
	}

	l.logger.Debug("intent launched",
		slog.String("kind", in.Kind.String()),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
	)
	return nil
}
