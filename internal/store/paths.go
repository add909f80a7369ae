package store

import "path/filepath"

const (
	LockfileName   = "dxm-lock.toml"
	SourcefileName = ".dxm-source"
	stateDirName   = ".dxm"
)

// LockfilePath returns the lockfile path next to the manifest in root.
func LockfilePath(root string) string {
	return filepath.Join(root, LockfileName)
}

// SourcefilePath returns the sourcefile path inside an installed directory.
func SourcefilePath(dir string) string {
	return filepath.Join(dir, SourcefileName)
}

// StateRoot holds tool-private state (audit log, writer lock).
func StateRoot(root string) string {
	return filepath.Join(root, stateDirName)
}

func AuditPath(root string) string {
	return filepath.Join(StateRoot(root), "audit.log")
}
