// Package fetch downloads package archives into the app cache before they
// are installed. Downloads go to a temp file on the same filesystem, are
// fsynced and optionally checksum-verified, then atomically renamed over the
// target so an installer never sees a partial package.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultRetries is used when a non-positive retry count is configured.
const DefaultRetries = 3

// Fetcher downloads packages with retry and backoff.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Fetcher that retries transient failures up to retries times.
//
// The client is configured with:
//   - RetryWaitMin: 1 second
//   - RetryWaitMax: 10 seconds
//   - Backoff: linear jitter
//   - no overall timeout; the context bounds each download
func New(retries int, logger *slog.Logger) *Fetcher {
	if retries <= 0 {
		retries = DefaultRetries
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff

	// slog is used instead.
	retryClient.Logger = nil

	return &Fetcher{
		httpClient: retryClient.StandardClient(),
		logger:     logger.With(slog.String("component", "fetch")),
	}
}

// Result describes a completed download.
type Result struct {
	// Path is the final location of the package.
	Path string
	// Size is the number of bytes written.
	Size int64
	// SHA256 is the hex checksum of the written file.
	SHA256 string
}

// Fetch downloads url to targetPath. When expectedSHA256 is non-empty the
// file must match it before it replaces targetPath.
func (f *Fetcher) Fetch(ctx context.Context, url, targetPath, expectedSHA256 string) (*Result, error) {
	f.logger.Info("starting download",
		slog.String("url", url),
		slog.String("target", targetPath),
	)

	targetDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("create target directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(targetDir, ".tcm-package-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		tmpFile.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("write to temp file: %w", err)
	}

	// Verification must read what is on disk, not the page cache of a file
	// that a crash could still truncate.
	if err := tmpFile.Sync(); err != nil {
		return nil, fmt.Errorf("sync to disk: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	var sum string
	if expectedSHA256 != "" {
		if err := VerifyChecksum(tmpPath, expectedSHA256); err != nil {
			return nil, fmt.Errorf("checksum verification failed: %w", err)
		}
		sum = normalize(expectedSHA256)
	} else {
		sum, err = ComputeChecksum(tmpPath)
		if err != nil {
			return nil, err
		}
	}

	// Package managers refuse archives they cannot read.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return nil, fmt.Errorf("set package permissions: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return nil, fmt.Errorf("move package into place: %w", err)
	}

	success = true
	f.logger.Info("download complete",
		slog.String("path", targetPath),
		slog.Int64("bytes", written),
	)
	return &Result{Path: targetPath, Size: written, SHA256: sum}, nil
}
