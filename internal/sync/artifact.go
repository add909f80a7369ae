package sync

import (
	"context"
	"fmt"

	"dxm/internal/audit"
	"dxm/internal/channel"
	"dxm/internal/installer"
	"dxm/internal/store"
)

const (
	artifactOwner = "citizenfx"
	artifactRepo  = "fivem"
	// Release tags are "v1.0.0.<build>".
	artifactTagPrefix = "v1.0.0."
)

// ArtifactOptions override the manifest for one artifact operation. Version
// may hold a channel name.
type ArtifactOptions struct {
	Version string
	Channel channel.Channel
	Path    string
}

func (o ArtifactOptions) empty() bool {
	return o.Version == "" && o.Channel == ""
}

func artifactLabel(version string) string {
	return "artifact@" + version
}

// InstallArtifact installs the locked build, or resolves one when nothing is
// locked yet or opts ask for a specific build.
func (e *Engine) InstallArtifact(ctx context.Context, root string, opts ArtifactOptions) (Report, error) {
	return e.run(ctx, root, "install-artifact", func(ctx context.Context, s *session) error {
		return e.installArtifact(ctx, s, opts)
	})
}

// UpdateArtifact resolves the artifact channel (or opts) and installs the
// result unless it is already in place.
func (e *Engine) UpdateArtifact(ctx context.Context, root string, opts ArtifactOptions) (Report, error) {
	return e.run(ctx, root, "update-artifact", func(ctx context.Context, s *session) error {
		return e.updateArtifact(ctx, s, opts)
	})
}

func (e *Engine) installArtifact(ctx context.Context, s *session, opts ArtifactOptions) error {
	e.applyArtifactOptions(s, opts)
	if !opts.empty() {
		return e.updateArtifact(ctx, s, opts)
	}
	locked := s.lock.ArtifactVersion
	if locked == "" {
		return e.updateArtifact(ctx, s, ArtifactOptions{Version: s.manifest.Artifact.Version})
	}
	dir := s.manifest.ArtifactDir(s.root)
	state, err := store.Classify(dir, locked)
	if err != nil {
		return err
	}
	if state == store.UpToDate {
		e.logger().Info("artifact already installed", "version", locked)
		e.Audit.Record("install-artifact", audit.PhaseSkip, "already installed", map[string]string{"version": locked})
		s.report.Skipped = append(s.report.Skipped, artifactLabel(locked))
		return e.persist(s)
	}
	return e.applyArtifact(ctx, s, locked)
}

func (e *Engine) updateArtifact(ctx context.Context, s *session, opts ArtifactOptions) error {
	e.applyArtifactOptions(s, opts)
	ref := opts.Version
	if ref == "" {
		ref = string(s.manifest.Artifact.ChannelOrDefault())
	}
	version, err := e.resolveArtifact(ctx, ref)
	if err != nil {
		return err
	}
	dir := s.manifest.ArtifactDir(s.root)
	installed, _, err := store.ReadSourcefile(dir)
	if err != nil {
		return err
	}
	if s.lock.ArtifactVersion == version && installed == version {
		e.logger().Info("artifact already up to date", "version", version)
		e.Audit.Record("update-artifact", audit.PhaseSkip, "already up to date", map[string]string{"version": version})
		s.report.Skipped = append(s.report.Skipped, artifactLabel(version))
		e.setArtifactVersion(s, version)
		return e.persist(s)
	}
	return e.applyArtifact(ctx, s, version)
}

// resolveArtifact turns a channel name into a build; anything else is a pinned build.
func (e *Engine) resolveArtifact(ctx context.Context, ref string) (string, error) {
	if !channel.IsChannel(ref) {
		return ref, nil
	}
	c, err := channel.Parse(ref)
	if err != nil {
		return "", err
	}
	e.logger().Info("resolving artifact channel", "channel", c)
	version, err := e.Channels.Resolve(ctx, e.Platform, c)
	if err != nil {
		return "", err
	}
	return version, nil
}

func (e *Engine) applyArtifact(ctx context.Context, s *session, version string) error {
	dir := s.manifest.ArtifactDir(s.root)
	fresh, err := store.Classify(dir, version)
	if err != nil {
		return err
	}
	commit, err := e.Commits.TagCommitSHA(ctx, artifactOwner, artifactRepo, artifactTagPrefix+version)
	if err != nil {
		return fmt.Errorf("SYNC_ARTIFACT_COMMIT: build %s: %w", version, err)
	}
	url := e.Platform.RuntimeURL(e.RuntimeURL, version, commit)
	e.logger().Info("installing artifact", "version", version, "platform", e.Platform.String())
	res, err := e.Installer.Install(ctx, installer.Request{
		URL:    url,
		Dest:   dir,
		Format: e.Platform.Format(),
		Source: version,
	})
	if err != nil {
		return fmt.Errorf("SYNC_ARTIFACT: build %s: %w", version, err)
	}
	s.lock.ArtifactVersion = version
	e.setArtifactVersion(s, version)
	if err := e.persist(s); err != nil {
		return err
	}
	label := artifactLabel(version)
	if fresh == store.Uninstalled {
		s.report.Installed = append(s.report.Installed, label)
	} else {
		s.report.Updated = append(s.report.Updated, label)
	}
	e.Audit.Record("artifact", audit.PhaseCommit, "installed", map[string]string{
		"version":  version,
		"url":      res.URL,
		"replaced": fmt.Sprint(res.Replaced),
	})
	return nil
}

func (e *Engine) applyArtifactOptions(s *session, opts ArtifactOptions) {
	if opts.Path != "" && opts.Path != s.manifest.Artifact.Path {
		s.manifest.Artifact.Path = opts.Path
		s.manifestDirty = true
	}
	if opts.Channel != "" && opts.Channel != s.manifest.Artifact.Channel {
		s.manifest.Artifact.Channel = opts.Channel
		s.manifestDirty = true
	}
}

func (e *Engine) setArtifactVersion(s *session, version string) {
	if s.manifest.Artifact.Version != version {
		s.manifest.Artifact.Version = version
		s.manifestDirty = true
	}
}
