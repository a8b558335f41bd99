package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/and2long/tcm/bridge/internal/intent"
)

type stubChecker bool

func (s stubChecker) Exists(string) bool { return bool(s) }

type stubConsent struct {
	allowed bool
	err     error
}

func (s stubConsent) CanRequestInstalls(context.Context) (bool, error) { return s.allowed, s.err }

type recordingOpener struct {
	opened []intent.Intent
	err    error
}

func (r *recordingOpener) Open(ctx context.Context, in intent.Intent) error {
	r.opened = append(r.opened, in)
	return r.err
}

type messages []string

func (m *messages) Notify(msg string) { *m = append(*m, msg) }

var testCommonConfig = CommonConfig{
	PackageName: "tech.and2long.tcm",
	CacheDir:    "/data/data/tech.and2long.tcm/cache",
	Authority:   "tech.and2long.tcm.fileprovider",
}

func TestCommon_PackageMissing(t *testing.T) {
	opener := &recordingOpener{}
	var msgs messages
	c := NewCommon(testCommonConfig, stubChecker(false), stubConsent{allowed: true}, opener, nopLogger())

	c.Install(context.Background(), "/data/data/tech.and2long.tcm/cache/app.apk", &msgs)

	if len(msgs) != 1 || msgs[0] != MsgPackageMissing {
		t.Errorf("messages = %v, want [%q]", msgs, MsgPackageMissing)
	}
	if len(opener.opened) != 0 {
		t.Errorf("nothing should be opened, got %v", opener.opened)
	}
}

func TestCommon_ConsentMissingOpensSettings(t *testing.T) {
	opener := &recordingOpener{}
	var msgs messages
	c := NewCommon(testCommonConfig, stubChecker(true), stubConsent{allowed: false}, opener, nopLogger())

	c.Install(context.Background(), "/data/data/tech.and2long.tcm/cache/app.apk", &msgs)

	if len(msgs) != 1 || msgs[0] != MsgAllowUnknownSources {
		t.Errorf("messages = %v", msgs)
	}
	want := intent.Intent{Kind: intent.UnknownSources, URI: "package:tech.and2long.tcm"}
	if len(opener.opened) != 1 || opener.opened[0] != want {
		t.Errorf("opened = %v, want [%v]", opener.opened, want)
	}
}

func TestCommon_OpensInstaller(t *testing.T) {
	opener := &recordingOpener{}
	var msgs messages
	c := NewCommon(testCommonConfig, stubChecker(true), stubConsent{allowed: true}, opener, nopLogger())

	c.Install(context.Background(), "/data/data/tech.and2long.tcm/cache/app.apk", &msgs)

	if len(msgs) != 0 {
		t.Errorf("no message expected, got %v", msgs)
	}
	want := intent.Intent{
		Kind: intent.ViewPackage,
		URI:  "content://tech.and2long.tcm.fileprovider/cache/app.apk",
	}
	if len(opener.opened) != 1 || opener.opened[0] != want {
		t.Errorf("opened = %v, want [%v]", opener.opened, want)
	}
}

func TestCommon_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		consent stubConsent
		openErr error
	}{
		{"consent check fails", stubConsent{err: boom}, nil},
		{"installer launch fails", stubConsent{allowed: true}, boom},
		{"settings launch fails", stubConsent{allowed: false}, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msgs messages
			c := NewCommon(testCommonConfig, stubChecker(true), tt.consent, &recordingOpener{err: tt.openErr}, nopLogger())

			c.Install(context.Background(), "/data/data/tech.and2long.tcm/cache/app.apk", &msgs)

			last := msgs[len(msgs)-1]
			if !strings.HasPrefix(last, "install failed: ") || !strings.Contains(last, "boom") {
				t.Errorf("last message = %q, want install failure", last)
			}
		})
	}
}

func TestPackageURI(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		cacheDir  string
		authority string
		want      string
	}{
		{"inside cache", "/c/app.apk", "/c", "a.fileprovider", "content://a.fileprovider/cache/app.apk"},
		{"nested", "/c/dl/app.apk", "/c", "a.fileprovider", "content://a.fileprovider/cache/dl/app.apk"},
		{"outside cache", "/sdcard/app.apk", "/c", "a.fileprovider", "file:///sdcard/app.apk"},
		{"no authority", "/c/app.apk", "/c", "", "file:///c/app.apk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PackageURI(tt.path, tt.cacheDir, tt.authority); got != tt.want {
				t.Errorf("PackageURI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.apk")
	if err := os.WriteFile(file, []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}

	var c FileChecker
	if !c.Exists(file) {
		t.Error("expected file to exist")
	}
	if c.Exists(dir) {
		t.Error("a directory is not a package")
	}
	if c.Exists(filepath.Join(dir, "missing.apk")) {
		t.Error("missing file reported as present")
	}
}
