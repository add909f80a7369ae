package fsutil

import (
	"bytes"
	"path/filepath"
)

// IgnoreFileName is the version-control ignore file written by dxm.
const IgnoreFileName = ".gitignore"

// ResourceIgnore excludes a resource directory from version control wholesale.
const ResourceIgnore = "*\n"

// RootIgnore is written at the server root next to the manifest.
const RootIgnore = "# FXServer\n/artifact/\n\n# txAdmin\n/txData/\n"

// DataIgnore is written inside the server data directory.
const DataIgnore = "# Cache\n/cache/\n\n# KVP\n/db/\n\n# Miscellaneous\n/.replxx_history\n/imgui.ini\n"

// WriteIgnore writes content as the ignore file of dir, replacing any
// previous one.
func WriteIgnore(dir, content string) error {
	return AtomicWrite(filepath.Join(dir, IgnoreFileName), []byte(content), 0o644)
}

// IsIgnoreAll reports whether data is an ignore file that excludes everything.
func IsIgnoreAll(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if string(line) == "*" {
			return true
		}
	}
	return false
}
