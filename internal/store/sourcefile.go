package store

import (
	"os"

	"dxm/internal/errs"
	"dxm/internal/fsutil"
)

// ReadSourcefile returns the reference recorded in dir. ok is false when no
// sourcefile exists.
func ReadSourcefile(dir string) (ref string, ok bool, err error) {
	blob, err := os.ReadFile(SourcefilePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errs.New(errs.IO, "SRCF_READ", err)
	}
	return string(blob), true, nil
}

// WriteSourcefile records ref as the reference materialised in dir.
func WriteSourcefile(dir, ref string) error {
	if err := fsutil.AtomicWrite(SourcefilePath(dir), []byte(ref), 0o644); err != nil {
		return errs.New(errs.IO, "SRCF_WRITE", err)
	}
	return nil
}

// Classify derives the state of dir given the reference the lockfile holds
// for it. An empty locked reference never counts as up to date.
func Classify(dir, locked string) (EntityState, error) {
	ref, ok, err := ReadSourcefile(dir)
	if err != nil {
		return Uninstalled, err
	}
	if !ok {
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return Uninstalled, nil
			}
			return Uninstalled, errs.New(errs.IO, "SRCF_STAT", err)
		}
		return Stale, nil
	}
	if locked != "" && ref == locked {
		return UpToDate, nil
	}
	return Stale, nil
}
