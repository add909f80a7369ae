package installer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"dxm/internal/errs"
	"dxm/internal/fsutil"
	"dxm/internal/store"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func tarArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func tarXzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := w.Write(tarArchive(t, files)); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

func tarGzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(tarArchive(t, files)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func serveArchives(t *testing.T, archives map[string][]byte, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		blob, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(blob)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newInstaller(srv *httptest.Server) *Installer {
	return &Installer{Downloader: &Downloader{HTTPClient: srv.Client(), UserAgent: "dxm/test"}}
}

// snapshot maps every regular file under dir to its content.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		blob, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(blob)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", dir, err)
	}
	return out
}

func seedDir(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestInstallZipUnwrapsRootAndSelectsNestedPath(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/res.zip": zipArchive(t, map[string]string{
			"repo-main/README.md":                  "readme",
			"repo-main/[ox]/ox_lib/fxmanifest.lua": "fx_version 'cerulean'",
			"repo-main/[ox]/ox_lib/init.lua":       "return {}",
		}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "resources", "ox_lib")
	res, err := newInstaller(srv).Install(context.Background(), Request{
		URL:        srv.URL + "/res.zip",
		Dest:       dest,
		NestedPath: "[ox]/ox_lib",
		Format:     Zip,
		IgnoreAll:  true,
	})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if res.Replaced {
		t.Fatalf("fresh install should not report replacement")
	}
	want := map[string]string{
		"fxmanifest.lua":      "fx_version 'cerulean'",
		"init.lua":            "return {}",
		store.SourcefileName:  srv.URL + "/res.zip",
		fsutil.IgnoreFileName: fsutil.ResourceIgnore,
	}
	if diff := cmp.Diff(want, snapshot(t, dest)); diff != "" {
		t.Fatalf("installed tree mismatch (-want +got):\n%s", diff)
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Fatalf("expected work directory to be cleaned up, found %d entries", len(entries))
	}
}

func TestInstallTarXzKeepsMultipleRoots(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/fx.tar.xz": tarXzArchive(t, map[string]string{
			"run.sh":                  "#!/bin/sh",
			"alpine/opt/cfx/FXServer": "bin",
		}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "artifact")
	if _, err := newInstaller(srv).Install(context.Background(), Request{
		URL:    srv.URL + "/fx.tar.xz",
		Dest:   dest,
		Format: TarXz,
		Source: "7290",
	}); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	got := snapshot(t, dest)
	if got["run.sh"] != "#!/bin/sh" || got["alpine/opt/cfx/FXServer"] != "bin" {
		t.Fatalf("unexpected tree: %v", got)
	}
	if got[store.SourcefileName] != "7290" {
		t.Fatalf("expected sourcefile to hold the build, got %q", got[store.SourcefileName])
	}
	if _, ok := got[fsutil.IgnoreFileName]; ok {
		t.Fatalf("artifact installs must not write an ignore marker")
	}
	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit to survive extraction, got %v", info.Mode())
	}
}

func TestInstallTarGz(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/update.tar.gz": tarGzArchive(t, map[string]string{"dxm-1.0/dxm": "binary"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "bin")
	if _, err := newInstaller(srv).Install(context.Background(), Request{
		URL:    srv.URL + "/update.tar.gz",
		Dest:   dest,
		Format: TarGz,
	}); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if got := snapshot(t, dest)["dxm"]; got != "binary" {
		t.Fatalf("expected unwrapped binary, got %q", got)
	}
}

func TestInstallReplacesExistingContent(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/v2.zip": zipArchive(t, map[string]string{"chat-2/fxmanifest.lua": "v2"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	seedDir(t, dest, map[string]string{"fxmanifest.lua": "v1", "stale.lua": "old"})

	res, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/v2.zip", Dest: dest, Format: Zip})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if !res.Replaced {
		t.Fatalf("expected replacement to be reported")
	}
	got := snapshot(t, dest)
	if _, ok := got["stale.lua"]; ok {
		t.Fatalf("old files must not survive a replacement: %v", got)
	}
	if got["fxmanifest.lua"] != "v2" {
		t.Fatalf("expected new content, got %v", got)
	}
}

func TestInstallExtractFailureLeavesDestinationUntouched(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{"/broken.zip": []byte("this is not a zip archive")}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	before := map[string]string{"fxmanifest.lua": "v1", "client/main.lua": "print(1)", store.SourcefileName: "u1"}
	seedDir(t, dest, before)

	_, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/broken.zip", Dest: dest, Format: Zip})
	if err == nil {
		t.Fatalf("expected extraction failure")
	}
	if errs.IsKind(err, errs.Rollback) {
		t.Fatalf("extraction failure must not be reported as rollback failure: %v", err)
	}
	if !errs.IsKind(err, errs.Decode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if diff := cmp.Diff(before, snapshot(t, dest)); diff != "" {
		t.Fatalf("destination changed (-want +got):\n%s", diff)
	}
}

func TestInstallCommitFailureRestoresBackup(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/v2.zip": zipArchive(t, map[string]string{"fxmanifest.lua": "v2"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	before := map[string]string{"fxmanifest.lua": "v1", "data/config.json": "{}"}
	seedDir(t, dest, before)

	injected := errors.New("injected failure")
	inst := newInstaller(srv)
	inst.beforeCommit = func(backup string) error {
		if backup == "" {
			t.Errorf("expected a backup to exist before commit")
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Errorf("destination should be moved aside before commit")
		}
		return injected
	}
	_, err := inst.Install(context.Background(), Request{URL: srv.URL + "/v2.zip", Dest: dest, Format: Zip})
	if !errors.Is(err, injected) {
		t.Fatalf("expected original error, got %v", err)
	}
	var rbErr *RollbackError
	if errors.As(err, &rbErr) {
		t.Fatalf("successful restore must not produce RollbackError")
	}
	if diff := cmp.Diff(before, snapshot(t, dest)); diff != "" {
		t.Fatalf("destination not restored (-want +got):\n%s", diff)
	}
}

func TestInstallRestoreFailureIsRollbackError(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/v2.zip": zipArchive(t, map[string]string{"fxmanifest.lua": "v2"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	seedDir(t, dest, map[string]string{"fxmanifest.lua": "v1"})

	injected := errors.New("injected failure")
	inst := newInstaller(srv)
	inst.beforeCommit = func(backup string) error {
		if err := os.RemoveAll(backup); err != nil {
			t.Fatal(err)
		}
		return injected
	}
	_, err := inst.Install(context.Background(), Request{URL: srv.URL + "/v2.zip", Dest: dest, Format: Zip})
	var rbErr *RollbackError
	if !errors.As(err, &rbErr) {
		t.Fatalf("expected RollbackError, got %v", err)
	}
	if !errs.IsKind(err, errs.Rollback) {
		t.Fatalf("expected rollback kind, got %s", errs.KindOf(err))
	}
	if !errors.Is(err, injected) {
		t.Fatalf("RollbackError should wrap the original cause")
	}
}

func TestInstallEnvInjectedCommitFailure(t *testing.T) {
	t.Setenv("DXM_TEST_FAIL_INSTALL_COMMIT", "1")
	srv := serveArchives(t, map[string][]byte{
		"/v2.zip": zipArchive(t, map[string]string{"fxmanifest.lua": "v2"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	before := map[string]string{"fxmanifest.lua": "v1"}
	seedDir(t, dest, before)

	_, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/v2.zip", Dest: dest, Format: Zip})
	if err == nil {
		t.Fatalf("expected injected failure")
	}
	if diff := cmp.Diff(before, snapshot(t, dest)); diff != "" {
		t.Fatalf("destination not restored (-want +got):\n%s", diff)
	}
}

func TestInstallDownloadFailure(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{}, nil)
	dest := filepath.Join(t.TempDir(), "chat")
	_, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/missing.zip", Dest: dest, Format: Zip})
	if !errs.IsKind(err, errs.Network) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination must not be created on download failure")
	}
}

func TestInstallRejectsTraversalEntries(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/evil.zip": zipArchive(t, map[string]string{"../../evil.txt": "pwned"}),
	}, nil)
	root := t.TempDir()
	dest := filepath.Join(root, "resources", "chat")
	_, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/evil.zip", Dest: dest, Format: Zip})
	if err == nil {
		t.Fatalf("expected traversal entry to be rejected")
	}
	if k := errs.KindOf(err); k != errs.PathSafety && k != errs.Decode {
		t.Fatalf("expected path safety or decode error, got %s: %v", k, err)
	}
	if _, err := os.Stat(filepath.Join(root, "evil.txt")); !os.IsNotExist(err) {
		t.Fatalf("traversal entry escaped the extraction root")
	}
}

func TestInstallMissingNestedPath(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/res.zip": zipArchive(t, map[string]string{"repo/fxmanifest.lua": "x"}),
	}, nil)
	dest := filepath.Join(t.TempDir(), "res")
	_, err := newInstaller(srv).Install(context.Background(), Request{URL: srv.URL + "/res.zip", Dest: dest, NestedPath: "nope", Format: Zip})
	if !errs.IsKind(err, errs.IO) {
		t.Fatalf("expected io error for missing nested path, got %v", err)
	}
}

func TestEntryDir(t *testing.T) {
	base := filepath.Join("data", "resources")
	tests := []struct {
		name string
		ok   bool
	}{
		{"chat", true},
		{"[ox]", true},
		{"ox_lib-1.0", true},
		{"../evil", false},
		{"..", false},
		{".", false},
		{"", false},
		{"a/b", false},
		{`a\b`, false},
		{"/abs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := EntryDir(base, tt.name)
			if tt.ok {
				if err != nil {
					t.Fatalf("EntryDir(%q): %v", tt.name, err)
				}
				if filepath.Dir(dir) != base {
					t.Fatalf("EntryDir(%q) = %q is not one level below base", tt.name, dir)
				}
				return
			}
			if !errs.IsKind(err, errs.PathSafety) {
				t.Fatalf("EntryDir(%q) expected path safety error, got %v", tt.name, err)
			}
		})
	}
}

func TestRemoveGuardsName(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "resources")
	seedDir(t, filepath.Join(base, "chat"), map[string]string{"a": "b"})
	if err := Remove(base, "../resources"); !errs.IsKind(err, errs.PathSafety) {
		t.Fatalf("expected path safety error, got %v", err)
	}
	if err := Remove(base, "chat"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "chat")); !os.IsNotExist(err) {
		t.Fatalf("expected resource dir to be removed")
	}
}
