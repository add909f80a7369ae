package installer

import (
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"dxm/internal/errs"
)

// EntryDir returns base/name after checking that name is exactly one path
// element, so the result sits one level below base.
func EntryDir(base, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) || filepath.VolumeName(name) != "" {
		return "", errs.Errorf(errs.PathSafety, "INS_PATH_UNSAFE", "invalid name %q: must be a single path element below %s", name, base)
	}
	return filepath.Join(base, name), nil
}

// NestedDir resolves nested inside root. "." and "" select root itself.
func NestedDir(root, nested string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(nested))
	if clean == "." {
		return root, nil
	}
	if !filepath.IsLocal(clean) {
		return "", errs.Errorf(errs.PathSafety, "INS_PATH_UNSAFE", "nested path %q escapes the archive", nested)
	}
	dir, err := securejoin.SecureJoin(root, clean)
	if err != nil {
		return "", errs.New(errs.PathSafety, "INS_PATH_UNSAFE", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", errs.New(errs.IO, "INS_NESTED_MISSING", err)
	}
	if !info.IsDir() {
		return "", errs.Errorf(errs.IO, "INS_NESTED_MISSING", "nested path %q is not a directory", nested)
	}
	return dir, nil
}

// Remove deletes base/name recursively after the same name check as EntryDir.
func Remove(base, name string) error {
	dir, err := EntryDir(base, name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.New(errs.IO, "INS_REMOVE", err)
	}
	return nil
}
