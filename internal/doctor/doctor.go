// Package doctor inspects a server root and reports drift between the
// manifest, the lockfile and the installed directories.
package doctor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dxm/internal/channel"
	"dxm/internal/config"
	"dxm/internal/fsutil"
	"dxm/internal/platform"
	"dxm/internal/store"
	dxmsync "dxm/internal/sync"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy  bool                   `json:"healthy"`
	Findings []Finding              `json:"findings"`
	Entities []dxmsync.EntityStatus `json:"entities,omitempty"`
	Host     *platform.HostInfo     `json:"host,omitempty"`
}

type Service struct {
	Root     string
	Platform platform.Platform
	// Channels, when set, is used to flag an artifact behind its channel.
	Channels dxmsync.ChannelResolver
	// Detect defaults to platform.Detect.
	Detect func(context.Context) (platform.HostInfo, error)
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	add := func(code, level, msg string) {
		findings = append(findings, Finding{Code: code, Level: level, Message: msg})
	}
	report := Report{}

	if host, err := s.detect(ctx); err != nil {
		add("DOC_HOST_DETECT", "warn", err.Error())
	} else {
		report.Host = &host
		add("DOC_HOST", "info", host.OS+"/"+host.Arch+" "+host.Platform+" "+host.Version)
		if !host.Supported() {
			add("DOC_HOST_UNSUPPORTED", "warn", "no FXServer builds are published for "+host.OS+"/"+host.Arch)
		}
	}

	m, err := config.Load(s.Root)
	if err != nil {
		add("DOC_MANIFEST_INVALID", "error", err.Error())
		return finish(report, findings)
	}
	lock, err := store.LoadLockfile(s.Root)
	if err != nil {
		add("DOC_LOCKFILE_INVALID", "error", err.Error())
		return finish(report, findings)
	}

	entities, err := dxmsync.StatusOf(s.Root, m, lock)
	if err != nil {
		add("DOC_STATUS_FAIL", "error", err.Error())
		return finish(report, findings)
	}
	report.Entities = entities
	for _, e := range entities {
		switch {
		case e.Error != "":
			add("DOC_RESOURCE_PATH", "error", e.Error)
		case e.State == store.Uninstalled:
			add("DOC_ENTITY_UNINSTALLED", "warn", e.Kind+" "+e.Name+" is not installed; run 'dxm install'")
		case e.State == store.Stale:
			add("DOC_ENTITY_STALE", "warn", e.Kind+" "+e.Name+" does not match the lockfile; run 'dxm install' or 'dxm update'")
		case e.Kind == dxmsync.KindResource && !ignoresAll(e.Dir):
			add("DOC_RESOURCE_IGNORE", "warn", "resource "+e.Name+" has no catch-all "+fsutil.IgnoreFileName+"; delete "+e.Dir+" and run 'dxm install'")
		}
	}

	artifactDir := m.ArtifactDir(s.Root)
	if _, err := os.Stat(artifactDir); err == nil {
		exe := filepath.Join(artifactDir, s.Platform.ExeName())
		if _, err := os.Stat(exe); err != nil {
			add("DOC_ARTIFACT_EXE_MISSING", "error", exe+" not found")
		}
	}

	if s.Channels != nil && lock.ArtifactVersion != "" {
		c := m.Artifact.ChannelOrDefault()
		if latest, err := s.Channels.Resolve(ctx, s.Platform, c); err != nil {
			add("DOC_CHANNEL_UNREACHABLE", "warn", err.Error())
		} else if channel.Outdated(lock.ArtifactVersion, latest) {
			add("DOC_ARTIFACT_OUTDATED", "info", "artifact "+lock.ArtifactVersion+" is behind "+c.String()+" ("+latest+"); run 'dxm update --artifact'")
		}
	}

	orphaned, leftovers := scanResources(m, s.Root)
	for _, dir := range orphaned {
		add("DOC_RESOURCE_ORPHAN", "warn", dir+" was installed by dxm but is not in the manifest")
	}
	rootLeftovers, _ := filepath.Glob(filepath.Join(s.Root, stagingPrefix+"*"))
	for _, dir := range append(rootLeftovers, leftovers...) {
		add("DOC_STAGING_LEFTOVER", "warn", dir+" holds an interrupted install; inspect it and delete it")
	}
	return finish(report, findings)
}

func finish(report Report, findings []Finding) Report {
	report.Findings = findings
	report.Healthy = true
	for _, f := range findings {
		if f.Level == "error" {
			report.Healthy = false
			break
		}
	}
	return report
}

// stagingPrefix names the work directories an install leaves behind when
// it could not restore the previous content.
const stagingPrefix = ".dxm-"

// scanResources lists directories under the resources root that carry a
// sourcefile but belong to no manifest entry, and leftover staging
// directories. Hidden directories are never descended into.
func scanResources(m config.Manifest, root string) (orphaned, leftovers []string) {
	known := map[string]struct{}{}
	for name, rc := range m.Resources {
		known[filepath.Join(m.CategoryDir(root, rc), name)] = struct{}{}
	}
	base := m.ResourcesDir(root)
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == base {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if strings.HasPrefix(d.Name(), stagingPrefix) {
				leftovers = append(leftovers, path)
			}
			return filepath.SkipDir
		}
		if _, err := os.Stat(store.SourcefilePath(path)); err != nil {
			return nil
		}
		if _, ok := known[path]; !ok {
			orphaned = append(orphaned, path)
		}
		return filepath.SkipDir
	})
	return orphaned, leftovers
}

func ignoresAll(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, fsutil.IgnoreFileName))
	return err == nil && fsutil.IsIgnoreAll(data)
}

func (s *Service) detect(ctx context.Context) (platform.HostInfo, error) {
	if s.Detect != nil {
		return s.Detect(ctx)
	}
	return platform.Detect(ctx)
}
