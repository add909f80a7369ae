// Package installer downloads archives and swaps them into place, restoring
// the previous content when the swap fails.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dxm/internal/errs"
	"dxm/internal/fsutil"
	"dxm/internal/store"
)

// Request describes one archive installation.
type Request struct {
	// URL is the concrete archive to download.
	URL string
	// Dest is the directory that ends up holding the selected content.
	Dest string
	// NestedPath selects a subdirectory of the unwrapped archive root.
	NestedPath string
	Format     Format
	// Source is recorded in Dest's sourcefile. Defaults to URL.
	Source string
	// IgnoreAll writes a catch-all ignore file into Dest.
	IgnoreAll bool
}

// Result reports what an install materialised.
type Result struct {
	URL      string `json:"url"`
	Dest     string `json:"dest"`
	Source   string `json:"source"`
	Replaced bool   `json:"replaced"`
}

// RollbackError is returned when restoring the previous content failed after
// an install error. The destination may be inconsistent; Backup names the
// directory still holding the old content, if any.
type RollbackError struct {
	Dest    string
	Backup  string
	Cause   error
	Restore error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("INS_ROLLBACK_FAILED: could not restore %s from %s: %v (install error: %v)", e.Dest, e.Backup, e.Restore, e.Cause)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Cause, e.Restore} }

func (e *RollbackError) ErrKind() errs.Kind { return errs.Rollback }

// Installer runs the download, extract and swap sequence.
type Installer struct {
	Downloader *Downloader
	Logger     *slog.Logger

	// beforeCommit runs after the backup is taken and before the new content
	// is moved in. Tests use it to inject failures.
	beforeCommit func(backup string) error
}

// Install materialises req.URL into req.Dest. Nothing under Dest changes
// unless the download and extraction succeed; once the old content has been
// moved aside, any failure moves it back.
func (i *Installer) Install(ctx context.Context, req Request) (Result, error) {
	log := i.logger().With("dest", req.Dest)
	source := req.Source
	if source == "" {
		source = req.URL
	}
	parent := filepath.Dir(req.Dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Result{}, errs.New(errs.IO, "INS_STAGE_CREATE", err)
	}
	work, err := os.MkdirTemp(parent, ".dxm-"+filepath.Base(req.Dest)+"-*")
	if err != nil {
		return Result{}, errs.New(errs.IO, "INS_STAGE_CREATE", err)
	}
	keepWork := false
	defer func() {
		if !keepWork {
			_ = os.RemoveAll(work)
		}
	}()

	archive, size, err := i.downloader().Fetch(ctx, req.URL, work)
	if err != nil {
		return Result{}, err
	}
	f, err := os.Open(archive)
	if err != nil {
		return Result{}, errs.New(errs.IO, "INS_EXTRACT", err)
	}
	log.Debug("extracting archive", "format", req.Format.String(), "nested_path", req.NestedPath)
	root, err := req.Format.Decompress(f, size, filepath.Join(work, "extract"))
	f.Close()
	if err != nil {
		return Result{}, err
	}
	staged, err := NestedDir(root, req.NestedPath)
	if err != nil {
		return Result{}, err
	}
	if err := store.WriteSourcefile(staged, source); err != nil {
		return Result{}, err
	}
	if req.IgnoreAll {
		if err := fsutil.WriteIgnore(staged, fsutil.ResourceIgnore); err != nil {
			return Result{}, errs.New(errs.IO, "INS_STAGE_WRITE", err)
		}
	}

	backup := ""
	replaced := false
	if empty, err := fsutil.IsEmptyDir(req.Dest); err != nil {
		return Result{}, errs.New(errs.IO, "INS_COMMIT_BACKUP", err)
	} else if !empty {
		backup = filepath.Join(work, "backup")
		if err := os.Rename(req.Dest, backup); err != nil {
			return Result{}, errs.New(errs.IO, "INS_COMMIT_BACKUP", err)
		}
		replaced = true
	} else if err := os.Remove(req.Dest); err != nil && !os.IsNotExist(err) {
		return Result{}, errs.New(errs.IO, "INS_COMMIT_BACKUP", err)
	}

	rollback := func(cause error) error {
		if backup == "" {
			_ = os.RemoveAll(req.Dest)
			return cause
		}
		log.Warn("restoring previous content", "error", cause)
		if err := os.RemoveAll(req.Dest); err != nil {
			keepWork = true
			return &RollbackError{Dest: req.Dest, Backup: backup, Cause: cause, Restore: err}
		}
		if err := os.Rename(backup, req.Dest); err != nil {
			keepWork = true
			return &RollbackError{Dest: req.Dest, Backup: backup, Cause: cause, Restore: err}
		}
		return cause
	}

	if os.Getenv("DXM_TEST_FAIL_INSTALL_COMMIT") == "1" {
		return Result{}, rollback(errs.Errorf(errs.IO, "INS_TEST_FAIL_COMMIT", "injected commit failure"))
	}
	if i.beforeCommit != nil {
		if err := i.beforeCommit(backup); err != nil {
			return Result{}, rollback(err)
		}
	}
	if err := os.Rename(staged, req.Dest); err != nil {
		return Result{}, rollback(errs.New(errs.IO, "INS_COMMIT_ATOMIC", err))
	}
	log.Debug("installed archive", "url", req.URL, "replaced", replaced)
	return Result{URL: req.URL, Dest: req.Dest, Source: source, Replaced: replaced}, nil
}

func (i *Installer) downloader() *Downloader {
	if i.Downloader != nil {
		return i.Downloader
	}
	return &Downloader{Logger: i.Logger}
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}
