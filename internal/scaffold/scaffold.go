// Package scaffold lays out a new FXServer root managed by dxm.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"

	"dxm/internal/config"
	"dxm/internal/fsutil"
)

// ErrExists is returned when the target already holds a manifest.
var ErrExists = errors.New("SCF_EXISTS: a dxm manifest already exists")

type Options struct {
	// Git initialises a repository at the root unless one exists.
	Git bool
}

// Result lists what Init created, relative to Root.
type Result struct {
	Root    string   `json:"root"`
	Created []string `json:"created"`
	Git     bool     `json:"gitInitialized"`
}

// Init writes a default manifest and the server data layout into dir.
// Existing files other than the manifest are left alone.
func Init(ctx context.Context, dir string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("SCF_PATH: %w", err)
	}
	if config.Exists(root) {
		return Result{}, fmt.Errorf("%w at %s", ErrExists, config.ManifestPath(root))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Result{}, fmt.Errorf("SCF_MKDIR: %w", err)
	}
	res := Result{Root: root}

	m := config.Default()
	if err := config.Save(root, m); err != nil {
		return Result{}, err
	}
	res.Created = append(res.Created, config.ManifestName)

	resources := m.ResourcesDir(root)
	if err := os.MkdirAll(resources, 0o755); err != nil {
		return Result{}, fmt.Errorf("SCF_MKDIR: %w", err)
	}
	files := []struct {
		path string
		data string
	}{
		{filepath.Join(m.DataDir(root), "server.cfg"), ""},
		{filepath.Join(root, fsutil.IgnoreFileName), fsutil.RootIgnore},
		{filepath.Join(m.DataDir(root), fsutil.IgnoreFileName), fsutil.DataIgnore},
	}
	for _, f := range files {
		created, err := fsutil.WriteFileIfMissing(f.path, []byte(f.data), 0o644)
		if err != nil {
			return Result{}, fmt.Errorf("SCF_WRITE: %w", err)
		}
		if created {
			rel, _ := filepath.Rel(root, f.path)
			res.Created = append(res.Created, filepath.ToSlash(rel))
		}
	}

	if opts.Git {
		initialised, err := initRepo(ctx, root)
		if err != nil {
			return Result{}, err
		}
		res.Git = initialised
	}
	return res, nil
}

// New creates dir, which must be missing or empty, and initialises it.
func New(ctx context.Context, dir string, opts Options) (Result, error) {
	empty, err := fsutil.IsEmptyDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("SCF_PATH: %w", err)
	}
	if !empty {
		return Result{}, fmt.Errorf("SCF_NOT_EMPTY: %s already exists and is not empty", dir)
	}
	return Init(ctx, dir, opts)
}

// initRepo reports whether a repository was created.
func initRepo(ctx context.Context, root string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := gogit.PlainOpen(root)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return false, fmt.Errorf("SCF_GIT: %w", err)
	}
	if _, err := gogit.PlainInit(root, false); err != nil {
		return false, fmt.Errorf("SCF_GIT: %w", err)
	}
	return true, nil
}
