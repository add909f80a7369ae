package store

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"dxm/internal/errs"
	"dxm/internal/fsutil"
)

// LockfileBanner prefixes every generated lockfile.
const LockfileBanner = "# THIS IS AN *AUTO-GENERATED* FILE.\n# DO *NOT* MODIFY THIS FILE.\n\n"

// LoadLockfile reads the lockfile in root. A missing file yields an empty lockfile.
func LoadLockfile(root string) (Lockfile, error) {
	blob, err := os.ReadFile(LockfilePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Lockfile{ResourceURLs: map[string]string{}}, nil
		}
		return Lockfile{}, errs.New(errs.IO, "LCK_READ", err)
	}
	var lock Lockfile
	if err := toml.Unmarshal(blob, &lock); err != nil {
		return Lockfile{}, errs.New(errs.Decode, "LCK_PARSE", err)
	}
	if lock.ResourceURLs == nil {
		lock.ResourceURLs = map[string]string{}
	}
	for name, url := range lock.ResourceURLs {
		if strings.TrimSpace(name) == "" {
			return Lockfile{}, errs.Errorf(errs.Decode, "LCK_SCHEMA", "empty resource name")
		}
		if strings.TrimSpace(url) == "" {
			return Lockfile{}, errs.Errorf(errs.Decode, "LCK_SCHEMA", "empty url for resource %q", name)
		}
	}
	return lock, nil
}

// SaveLockfile writes lock to root with the generated-file banner.
func SaveLockfile(root string, lock Lockfile) error {
	if lock.ResourceURLs == nil {
		lock.ResourceURLs = map[string]string{}
	}
	blob, err := toml.Marshal(lock)
	if err != nil {
		return errs.New(errs.Decode, "LCK_ENCODE", err)
	}
	var buf bytes.Buffer
	buf.WriteString(LockfileBanner)
	buf.Write(blob)
	if err := fsutil.AtomicWrite(LockfilePath(root), buf.Bytes(), 0o644); err != nil {
		return errs.New(errs.IO, "LCK_WRITE", fmt.Errorf("%s: %w", LockfilePath(root), err))
	}
	return nil
}

// ResourceURL returns the locked URL of a resource.
func (l Lockfile) ResourceURL(name string) (string, bool) {
	url, ok := l.ResourceURLs[name]
	return url, ok && url != ""
}

func (l *Lockfile) SetResourceURL(name, url string) {
	if l.ResourceURLs == nil {
		l.ResourceURLs = map[string]string{}
	}
	l.ResourceURLs[name] = url
}

// RemoveResourceURL drops a resource entry and reports whether it existed.
func (l *Lockfile) RemoveResourceURL(name string) bool {
	if _, ok := l.ResourceURLs[name]; !ok {
		return false
	}
	delete(l.ResourceURLs, name)
	return true
}
