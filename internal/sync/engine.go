// Package sync keeps the manifest, the lockfile and the installed
// directories of a server convergent.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"dxm/internal/audit"
	"dxm/internal/channel"
	"dxm/internal/config"
	"dxm/internal/errs"
	"dxm/internal/installer"
	"dxm/internal/platform"
	"dxm/internal/store"
)

// ChannelResolver maps an update channel to a build number.
type ChannelResolver interface {
	Resolve(ctx context.Context, p platform.Platform, c channel.Channel) (string, error)
}

// ReferenceResolver maps a free-form resource URL to an archive URL.
type ReferenceResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// CommitLookup finds the commit a release tag points at.
type CommitLookup interface {
	TagCommitSHA(ctx context.Context, owner, repo, tag string) (string, error)
}

// ArchiveInstaller materialises an archive into a directory.
type ArchiveInstaller interface {
	Install(ctx context.Context, req installer.Request) (installer.Result, error)
}

// Engine runs install, update and remove operations against a server root
// (the directory holding dxm.toml).
type Engine struct {
	Channels   ChannelResolver
	References ReferenceResolver
	Commits    CommitLookup
	Installer  ArchiveInstaller
	Platform   platform.Platform
	// RuntimeURL overrides the artifact host; empty uses the public one.
	RuntimeURL string
	Audit      *audit.Logger
	Logger     *slog.Logger
}

// Report lists what an operation did, by entity label.
type Report struct {
	Installed []string `json:"installed"`
	Updated   []string `json:"updated"`
	Skipped   []string `json:"skipped"`
	Removed   []string `json:"removed,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Changed reports whether anything was downloaded or removed.
func (r Report) Changed() bool {
	return len(r.Installed)+len(r.Updated)+len(r.Removed) > 0
}

func (r *Report) sort() {
	for _, list := range [][]string{r.Installed, r.Updated, r.Skipped, r.Removed} {
		sort.Strings(list)
	}
}

// session holds the state documents of one root while the writer lock is held.
type session struct {
	root          string
	manifest      config.Manifest
	lock          store.Lockfile
	manifestDirty bool
	report        Report
}

func (e *Engine) validate() error {
	if e.Channels == nil || e.References == nil || e.Commits == nil || e.Installer == nil {
		return fmt.Errorf("SYNC_SETUP: sync dependencies not configured")
	}
	return nil
}

// run loads root's documents under the writer lock and hands them to fn.
func (e *Engine) run(ctx context.Context, root, op string, fn func(context.Context, *session) error) (Report, error) {
	if err := e.validate(); err != nil {
		return Report{}, err
	}
	lk, err := store.AcquireLock(root)
	if err != nil {
		return Report{}, err
	}
	defer lk.Release()

	m, err := config.Load(root)
	if err != nil {
		return Report{}, err
	}
	lock, err := store.LoadLockfile(root)
	if err != nil {
		return Report{}, err
	}
	s := &session{root: root, manifest: m, lock: lock}
	e.Audit.Record(op, audit.PhaseStart, "", map[string]string{"root": root})
	if err := fn(ctx, s); err != nil {
		phase := audit.PhaseCommit
		if errs.IsKind(err, errs.Rollback) {
			phase = audit.PhaseRollback
		}
		e.Audit.Failure(op, phase, err, nil)
		return s.report, err
	}
	s.report.sort()
	return s.report, nil
}

// persist writes the lockfile and, when touched, the manifest.
func (e *Engine) persist(s *session) error {
	if err := store.SaveLockfile(s.root, s.lock); err != nil {
		return err
	}
	if s.manifestDirty {
		if err := config.Save(s.root, s.manifest); err != nil {
			return err
		}
		s.manifestDirty = false
	}
	return nil
}

// batchable reports whether err only skips one entity of a batch.
func batchable(err error) bool {
	return errs.IsKind(err, errs.NoDownloadURL)
}

func (e *Engine) warn(s *session, op, name string, err error) {
	e.logger().Warn("no download url, skipping resource", "resource", name)
	e.Audit.Failure(op, audit.PhaseSkip, err, map[string]string{"resource": name})
	s.report.Warnings = append(s.report.Warnings, err.Error())
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

var errUnknownResource = errors.New("no such resource in manifest")

func unknownResource(name string) error {
	return fmt.Errorf("SYNC_RESOURCE_UNKNOWN: %q: %w", name, errUnknownResource)
}

// IsUnknownResource reports whether err names a resource missing from the manifest.
func IsUnknownResource(err error) bool {
	return errors.Is(err, errUnknownResource)
}
