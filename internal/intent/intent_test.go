package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/and2long/tcm/bridge/internal/executor"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	name   string
	args   []string
	result *executor.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*executor.Result, error) {
	f.name = name
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &executor.Result{Stdout: "Starting: Intent { act=android.settings.SETTINGS }\n"}, nil
	}
	return f.result, nil
}

func TestIntent_Args(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
		want []string
	}{
		{
			name: "file manager",
			in:   Intent{Kind: FileManager},
			want: []string{"-a", "android.intent.action.GET_CONTENT", "-t", "*/*", "-c", "android.intent.category.OPENABLE"},
		},
		{
			name: "home chooser",
			in:   Intent{Kind: HomeChooser},
			want: []string{"-a", "android.intent.action.MAIN", "-c", "android.intent.category.HOME", "-f", "0x10000000"},
		},
		{
			name: "settings",
			in:   Intent{Kind: Settings},
			want: []string{"-a", "android.settings.SETTINGS"},
		},
		{
			name: "unknown sources",
			in:   Intent{Kind: UnknownSources, URI: PackageURI("tech.and2long.tcm")},
			want: []string{"-a", "android.settings.MANAGE_UNKNOWN_APP_SOURCES", "-d", "package:tech.and2long.tcm", "-f", "0x10000000"},
		},
		{
			name: "view package",
			in:   Intent{Kind: ViewPackage, URI: "content://tech.and2long.tcm.fileprovider/cache/app.apk"},
			want: []string{
				"-a", "android.intent.action.VIEW",
				"-d", "content://tech.and2long.tcm.fileprovider/cache/app.apk",
				"-t", "application/vnd.android.package-archive",
				"--grant-read-uri-permission",
				"-f", "0x10000000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Args()
			if err != nil {
				t.Fatalf("Args failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntent_ArgsRequireURI(t *testing.T) {
	for _, k := range []Kind{UnknownSources, ViewPackage} {
		if _, err := (Intent{Kind: k}).Args(); !errors.Is(err, ErrMissingURI) {
			t.Errorf("%s: expected ErrMissingURI, got %v", k, err)
		}
	}
	if _, err := (Intent{Kind: Kind(42)}).Args(); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLauncher_Open(t *testing.T) {
	runner := &fakeRunner{}
	l := NewLauncher(runner, nopLogger())

	if err := l.Open(context.Background(), Intent{Kind: Settings}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if runner.name != "am" {
		t.Errorf("ran %q, want am", runner.name)
	}
	want := []string{"start", "-a", "android.settings.SETTINGS"}
	if !reflect.DeepEqual(runner.args, want) {
		t.Errorf("args = %v, want %v", runner.args, want)
	}
}

func TestLauncher_OpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"error on stdout", &fakeRunner{result: &executor.Result{Stdout: "Error: Activity not started, unable to resolve Intent"}}},
		{"error on stderr", &fakeRunner{result: &executor.Result{Stderr: "Error type 3"}}},
		{"non-zero exit", &fakeRunner{result: &executor.Result{ExitCode: 255}}},
		{"timed out", &fakeRunner{result: &executor.Result{ExitCode: -1, TimedOut: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLauncher(tt.runner, nopLogger()).Open(context.Background(), Intent{Kind: HomeChooser})
			var launchErr *LaunchError
			if !errors.As(err, &launchErr) {
				t.Fatalf("expected LaunchError, got %v", err)
			}
			if launchErr.Kind != HomeChooser {
				t.Errorf("kind = %s, want %s", launchErr.Kind, HomeChooser)
			}
		})
	}
}

func TestLauncher_RunnerError(t *testing.T) {
	boom := errors.New("tool not allowed")
	err := NewLauncher(&fakeRunner{err: boom}, nopLogger()).Open(context.Background(), Intent{Kind: FileManager})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}
}
