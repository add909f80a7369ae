package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"dxm/internal/errs"
	"dxm/internal/fsutil"
)

// ErrManifestNotFound is returned by Find when no ancestor holds a manifest.
var ErrManifestNotFound = errors.New("MAN_NOT_FOUND: no dxm.toml found; run 'dxm init' first")

// ManifestPath returns the manifest location for a server root.
func ManifestPath(root string) string {
	return filepath.Join(root, ManifestName)
}

// Exists reports whether root already holds a manifest.
func Exists(root string) bool {
	_, err := os.Stat(ManifestPath(root))
	return err == nil
}

// Find walks up from start looking for dxm.toml and returns the directory
// holding it.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("MAN_NOT_FOUND: %w", err)
	}
	for i := 0; i < maxAncestorSearch; i++ {
		if info, err := os.Stat(ManifestPath(dir)); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", ErrManifestNotFound
}

// Load reads, normalises and validates the manifest in root.
func Load(root string) (Manifest, error) {
	blob, err := os.ReadFile(ManifestPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrManifestNotFound
		}
		return Manifest{}, errs.New(errs.IO, "MAN_READ", err)
	}
	var m Manifest
	if err := toml.Unmarshal(blob, &m); err != nil {
		return Manifest{}, errs.New(errs.Decode, "MAN_PARSE", err)
	}
	m = Normalize(m)
	if err := Validate(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// FindAndLoad combines Find and Load.
func FindAndLoad(start string) (string, Manifest, error) {
	root, err := Find(start)
	if err != nil {
		return "", Manifest{}, err
	}
	m, err := Load(root)
	if err != nil {
		return "", Manifest{}, err
	}
	return root, m, nil
}

// Save writes m to root with default values left out.
func Save(root string, m Manifest) error {
	m = Normalize(m)
	if err := Validate(m); err != nil {
		return err
	}
	blob, err := toml.Marshal(compact(m))
	if err != nil {
		return errs.New(errs.Decode, "MAN_ENCODE", err)
	}
	if err := fsutil.AtomicWrite(ManifestPath(root), blob, 0o644); err != nil {
		return errs.New(errs.IO, "MAN_WRITE", err)
	}
	return nil
}

func compact(m Manifest) Manifest {
	out := Manifest{Artifact: m.Artifact, Server: m.Server}
	if len(m.Resources) > 0 {
		out.Resources = make(map[string]ResourceConfig, len(m.Resources))
	}
	for name, r := range m.Resources {
		if r.Category == DefaultCategory {
			r.Category = ""
		}
		if r.NestedPath == DefaultNestedPath {
			r.NestedPath = ""
		}
		out.Resources[name] = r
	}
	return out
}
