// Package dispatch maps named bridge methods onto the host operations:
// system pickers, silent and consent-based installs, and the privilege
// probe. Transports decode a Request, call Handle, and encode the Response.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/and2long/tcm/bridge/internal/fetch"
	"github.com/and2long/tcm/bridge/internal/installer"
	"github.com/and2long/tcm/bridge/internal/intent"
	"github.com/and2long/tcm/bridge/internal/journal"
	"github.com/and2long/tcm/bridge/internal/sysinfo"
	"github.com/and2long/tcm/bridge/internal/version"
)

// Default and maximum number of entries returned by history.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// Argument validation errors.
var (
	ErrUnsafePath      = errors.New("package path must be absolute and free of shell metacharacters")
	ErrInvalidLimit    = errors.New("limit must be a positive integer")
	ErrJournalDisabled = errors.New("journal is disabled")
)

// Opener launches a system intent.
type Opener interface {
	Open(ctx context.Context, in intent.Intent) error
}

// SilentInstaller installs a package through the privileged shell.
type SilentInstaller interface {
	Install(ctx context.Context, path string) bool
}

// CommonInstaller installs a package through the user-consent flow.
type CommonInstaller interface {
	Install(ctx context.Context, path string, n installer.Notifier)
}

// PrivilegeChecker reports whether a privileged shell is available.
type PrivilegeChecker interface {
	Check(ctx context.Context) bool
}

// Fetcher downloads a package to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, targetPath, expectedSHA256 string) (*fetch.Result, error)
}

// History returns recent journal entries, newest first.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

// HostInfoFunc collects the host summary for status.
type HostInfoFunc func(ctx context.Context) (*sysinfo.HostInfo, error)

// Deps are the collaborators a Handler dispatches to. Fetcher, History and
// HostInfo are optional.
type Deps struct {
	Opener      Opener
	Silent      SilentInstaller
	Common      CommonInstaller
	Probe       PrivilegeChecker
	Fetcher     Fetcher
	History     History
	HostInfo    HostInfoFunc
	PackagePath string
}

// Handler routes requests to host operations.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Handler.
func New(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		deps:   deps,
		logger: logger.With(slog.String("component", "dispatch")),
	}
}

// Handle runs one request. It never panics on bad input; every failure is
// reported in the Response.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := h.route(ctx, req)

	h.logger.Info("request handled",
		"method", req.Method,
		"success", resp.Success,
		"duration", time.Since(start),
	)
	return resp
}

func (h *Handler) route(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodOpenFileManager:
		return h.open(ctx, intent.Intent{Kind: intent.FileManager}, "")
	case MethodOpenLauncher:
		return h.open(ctx, intent.Intent{Kind: intent.HomeChooser}, "Failed to open home screen")
	case MethodOpenPhoneSettings:
		return h.open(ctx, intent.Intent{Kind: intent.Settings}, "")
	case MethodSilenceInstall:
		return h.silenceInstall(ctx, req.Args)
	case MethodCommonInstall:
		return h.commonInstall(ctx, req.Args)
	case MethodCheckRoot:
		return boolResponse(h.deps.Probe.Check(ctx))
	case MethodHistory:
		return h.history(req.Args)
	case MethodStatus:
		return h.status(ctx)
	default:
		h.logger.Warn("unknown method", "method", req.Method)
		return Response{Error: ErrNotImplemented}
	}
}

// open launches in. Launch failures are reported, never retried; notice,
// when set, prefixes a user-facing message.
func (h *Handler) open(ctx context.Context, in intent.Intent, notice string) Response {
	if err := h.deps.Opener.Open(ctx, in); err != nil {
		h.logger.Error("failed to open intent", "intent", in.Kind.String(), "error", err)
		resp := Response{Error: err.Error()}
		if notice != "" {
			resp.Message = notice + ": " + err.Error()
		}
		return resp
	}
	return Response{Success: true}
}

func (h *Handler) silenceInstall(ctx context.Context, args map[string]string) Response {
	path, err := h.preparePackage(ctx, args)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return boolResponse(h.deps.Silent.Install(ctx, path))
}

func (h *Handler) commonInstall(ctx context.Context, args map[string]string) Response {
	path, err := h.preparePackage(ctx, args)
	if err != nil {
		return Response{Error: err.Error()}
	}

	var notices []string
	h.deps.Common.Install(ctx, path, installer.NotifierFunc(func(msg string) {
		notices = append(notices, msg)
	}))
	return Response{Success: true, Message: strings.Join(notices, "\n")}
}

// preparePackage resolves the package path and downloads it first when a
// url argument is present.
func (h *Handler) preparePackage(ctx context.Context, args map[string]string) (string, error) {
	path := h.deps.PackagePath
	if p := args[ArgPath]; p != "" {
		path = p
	}
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	url := args[ArgURL]
	if url == "" {
		return path, nil
	}
	if h.deps.Fetcher == nil {
		return "", errors.New("downloads are not configured")
	}
	res, err := h.deps.Fetcher.Fetch(ctx, url, path, args[ArgSHA256])
	if err != nil {
		h.logger.Error("package download failed", "url", url, "error", err)
		return "", fmt.Errorf("download failed: %w", err)
	}
	return res.Path, nil
}

func (h *Handler) history(args map[string]string) Response {
	if h.deps.History == nil {
		return Response{Error: ErrJournalDisabled.Error()}
	}

	limit := DefaultHistoryLimit
	if s := args[ArgLimit]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return Response{Error: ErrInvalidLimit.Error()}
		}
		limit = min(n, MaxHistoryLimit)
	}

	entries, err := h.deps.History.Recent(limit)
	if err != nil {
		h.logger.Error("failed to read journal", "error", err)
		return Response{Error: err.Error()}
	}
	return dataResponse(entries)
}

// Status is the data payload of the status method.
type Status struct {
	Version string            `json:"version"`
	Root    bool              `json:"root"`
	Host    *sysinfo.HostInfo `json:"host,omitempty"`
}

func (h *Handler) status(ctx context.Context) Response {
	st := Status{
		Version: version.Version,
		Root:    h.deps.Probe.Check(ctx),
	}
	if h.deps.HostInfo != nil {
		info, err := h.deps.HostInfo(ctx)
		if err != nil {
			h.logger.Warn("failed to collect host info", "error", err)
		}
		st.Host = info
	}
	return dataResponse(st)
}

// ValidatePath accepts absolute paths built only from characters that are
// inert in a POSIX shell, since the path is interpolated into the command
// line written to the privileged shell.
func ValidatePath(path string) error {
	if path == "" || !filepath.IsAbs(path) {
		return ErrUnsafePath
	}
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("/._-+", r):
		default:
			return ErrUnsafePath
		}
	}
	return nil
}

func boolResponse(v bool) Response {
	return Response{Success: true, Result: &v}
}

func dataResponse(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{Error: fmt.Sprintf("failed to encode result: %v", err)}
	}
	return Response{Success: true, Data: data}
}
