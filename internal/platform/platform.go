// Package platform describes the FXServer build targets dxm can install.
package platform

import (
	"fmt"
	"runtime"
	"strings"

	"dxm/internal/installer"
)

// DefaultRuntimeURL is the root of the FXServer artifact server.
const DefaultRuntimeURL = "https://runtime.fivem.net/artifacts/fivem"

// Platform is an FXServer build target.
type Platform int

const (
	Linux Platform = iota
	Windows
)

// Default returns the platform matching the running OS.
func Default() Platform {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Linux
}

// Parse maps "windows"/"win32" and "linux" to a Platform.
func Parse(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win32", "win":
		return Windows, nil
	case "linux":
		return Linux, nil
	case "":
		return Default(), nil
	}
	return Linux, fmt.Errorf("PLT_PARSE: unknown platform %q (want windows or linux)", s)
}

func (p Platform) String() string {
	if p == Windows {
		return "windows"
	}
	return "linux"
}

// ChangelogName is the platform segment of the changelog feed URL.
func (p Platform) ChangelogName() string {
	if p == Windows {
		return "win32"
	}
	return "linux"
}

// RuntimeName is the platform segment of the artifact download URL.
func (p Platform) RuntimeName() string {
	if p == Windows {
		return "build_server_windows"
	}
	return "build_proot_linux"
}

// ArchiveName is the file name of the artifact archive.
func (p Platform) ArchiveName() string {
	if p == Windows {
		return "server.zip"
	}
	return "fx.tar.xz"
}

// ExeName is the entry point inside an installed artifact.
func (p Platform) ExeName() string {
	if p == Windows {
		return "FXServer.exe"
	}
	return "run.sh"
}

// Format is the decompression variant for the artifact archive.
func (p Platform) Format() installer.Format {
	if p == Windows {
		return installer.Zip
	}
	return installer.TarXz
}

// RuntimeURL builds the artifact download URL for a build and its commit.
// An empty base selects DefaultRuntimeURL.
func (p Platform) RuntimeURL(base, version, commit string) string {
	if base == "" {
		base = DefaultRuntimeURL
	}
	return fmt.Sprintf("%s/%s/master/%s-%s/%s", strings.TrimRight(base, "/"), p.RuntimeName(), version, commit, p.ArchiveName())
}
