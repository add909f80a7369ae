package e2e

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("resolve repo root failed: %v", err)
	}
	return root
}

func buildCLI(t *testing.T, home string) (string, []string) {
	t.Helper()
	root := repoRoot(t)
	goModCache := filepath.Join(os.TempDir(), "dxm-gomodcache")
	goCache := filepath.Join(os.TempDir(), "dxm-gocache")
	if err := os.MkdirAll(goModCache, 0o755); err != nil {
		t.Fatalf("create mod cache failed: %v", err)
	}
	if err := os.MkdirAll(goCache, 0o755); err != nil {
		t.Fatalf("create go cache failed: %v", err)
	}

	env := append(os.Environ(),
		"HOME="+home,
		"GOMODCACHE="+goModCache,
		"GOCACHE="+goCache,
	)
	bin := filepath.Join(home, "bin", "dxm")
	if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
		t.Fatalf("create bin dir failed: %v", err)
	}
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/dxm")
	cmd.Dir = root
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build cli failed: %v\n%s", err, string(out))
	}
	return bin, env
}

// serveUpstream starts a server standing in for GitHub, both version feeds
// and the runtime mirror, and returns env pointing dxm at it.
func serveUpstream(t *testing.T, env []string) []string {
	t.Helper()
	archives := map[string][]byte{
		"/runtime/build_proot_linux/master/7290-abc123/fx.tar.xz": tarXzArchive(t, map[string]string{
			"run.sh": "#!/bin/sh\n",
		}),
		"/runtime/build_server_windows/master/7290-abc123/server.zip": zipArchive(t, map[string]string{
			"FXServer.exe": "7290",
		}),
		"/web/citizenfx/cfx-server-data/archive/refs/heads/master.zip": zipArchive(t, map[string]string{
			"cfx-server-data-master/resources/[gameplay]/chat/fxmanifest.lua": "chat",
		}),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index":
			fmt.Fprint(w, `{"recommendedArtifact":"7290"}`)
			return
		case "/changelog/win32/server", "/changelog/linux/server":
			fmt.Fprint(w, `{"critical":"7290","recommended":"7290","optional":"7290","latest":"7290"}`)
			return
		case "/api/repos/citizenfx/fivem/git/ref/tags/v1.0.0.7290":
			fmt.Fprint(w, `{"object":{"sha":"abc123","type":"commit"}}`)
			return
		case "/api/repos/citizenfx/cfx-server-data":
			fmt.Fprint(w, `{"default_branch":"master"}`)
			return
		}
		if blob, ok := archives[r.URL.Path]; ok {
			_, _ = w.Write(blob)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return mergeEnv(env, map[string]string{
		"DXM_GITHUB_API":    srv.URL + "/api",
		"DXM_GITHUB_WEB":    srv.URL + "/web",
		"DXM_CHANGELOG_URL": srv.URL + "/changelog",
		"DXM_INDEX_URL":     srv.URL + "/index",
		"DXM_RUNTIME_URL":   srv.URL + "/runtime",
		"GITHUB_TOKEN":      "",
	})
}

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

func tarXzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xw)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

func runCLI(t *testing.T, bin string, env []string, args ...string) string {
	t.Helper()
	return runCLIWithEnv(t, bin, env, nil, args...)
}

func runCLIWithEnv(t *testing.T, bin string, env []string, extra map[string]string, args ...string) string {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = mergeEnv(env, extra)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("command failed: %s\nargs=%v\noutput=%s", err, args, string(out))
	}
	return string(out)
}

// runCLIExpectFailWithEnv runs the CLI, requires it to fail and returns its
// output and exit code.
func runCLIExpectFailWithEnv(t *testing.T, bin string, env []string, extra map[string]string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = mergeEnv(env, extra)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected command to fail\nargs=%v\noutput=%s", args, string(out))
	}
	code := -1
	if exit, ok := err.(*exec.ExitError); ok {
		code = exit.ExitCode()
	}
	return string(out), code
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	values := map[string]string{}
	for _, item := range base {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		values[parts[0]] = parts[1]
	}
	for k, v := range extra {
		values[k] = v
	}
	out := make([]string, 0, len(values))
	for k, v := range values {
		out = append(out, k+"="+v)
	}
	return out
}

func assertContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}
