package config

import (
	"os"
	"path/filepath"
	"strings"

	"dxm/internal/errs"
)

// ResolveDir turns a command-line directory argument into an absolute path.
// An empty dir is the working directory and a leading ~ is the home directory.
func ResolveDir(dir string) (string, error) {
	switch {
	case dir == "":
		dir = "."
	case dir == "~" || strings.HasPrefix(dir, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errs.New(errs.IO, "MAN_HOME", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errs.New(errs.IO, "MAN_PATH", err)
	}
	return abs, nil
}
