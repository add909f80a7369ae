package sync

import (
	"context"
	"fmt"

	"dxm/internal/audit"
	"dxm/internal/config"
	"dxm/internal/errs"
	"dxm/internal/installer"
	"dxm/internal/store"
)

// InstallResource installs the locked URL of name, or resolves its manifest
// URL when nothing is locked.
func (e *Engine) InstallResource(ctx context.Context, root, name string) (Report, error) {
	return e.run(ctx, root, "install-resource", func(ctx context.Context, s *session) error {
		return e.installResource(ctx, s, name)
	})
}

// UpdateResource resolves the manifest URL of name and installs it unless it
// is already in place.
func (e *Engine) UpdateResource(ctx context.Context, root, name string) (Report, error) {
	return e.run(ctx, root, "update-resource", func(ctx context.Context, s *session) error {
		return e.updateResource(ctx, s, name)
	})
}

// AddResource records name in the manifest and installs it.
func (e *Engine) AddResource(ctx context.Context, root, name string, rc config.ResourceConfig) (Report, error) {
	return e.run(ctx, root, "add-resource", func(ctx context.Context, s *session) error {
		if err := config.UpsertResource(&s.manifest, name, rc); err != nil {
			return err
		}
		s.manifestDirty = true
		if err := e.updateResource(ctx, s, name); err != nil {
			return err
		}
		return e.persist(s)
	})
}

// RemoveResource deletes the installed directory of name, then its lockfile
// and manifest entries.
func (e *Engine) RemoveResource(ctx context.Context, root, name string) (Report, error) {
	return e.run(ctx, root, "remove-resource", func(ctx context.Context, s *session) error {
		rc, ok := s.manifest.Resources[name]
		if !ok {
			return unknownResource(name)
		}
		if err := installer.Remove(s.manifest.CategoryDir(s.root, rc), name); err != nil {
			return err
		}
		s.lock.RemoveResourceURL(name)
		config.RemoveResource(&s.manifest, name)
		s.manifestDirty = true
		if err := e.persist(s); err != nil {
			return err
		}
		e.logger().Info("removed resource", "resource", name)
		e.Audit.Record("remove-resource", audit.PhaseCommit, "removed", map[string]string{"resource": name})
		s.report.Removed = append(s.report.Removed, name)
		return nil
	})
}

// resourceDir checks name before any filesystem access.
func (e *Engine) resourceDir(s *session, name string) (config.ResourceConfig, string, error) {
	rc, ok := s.manifest.Resources[name]
	if !ok {
		return config.ResourceConfig{}, "", unknownResource(name)
	}
	dir, err := installer.EntryDir(s.manifest.CategoryDir(s.root, rc), name)
	if err != nil {
		return config.ResourceConfig{}, "", err
	}
	return rc, dir, nil
}

func (e *Engine) installResource(ctx context.Context, s *session, name string) error {
	rc, dir, err := e.resourceDir(s, name)
	if err != nil {
		return err
	}
	locked, ok := s.lock.ResourceURL(name)
	if !ok {
		return e.updateResource(ctx, s, name)
	}
	state, err := store.Classify(dir, locked)
	if err != nil {
		return err
	}
	if state == store.UpToDate {
		e.logger().Info("resource already installed", "resource", name)
		e.Audit.Record("install-resource", audit.PhaseSkip, "already installed", map[string]string{"resource": name})
		s.report.Skipped = append(s.report.Skipped, name)
		return nil
	}
	return e.applyResource(ctx, s, name, rc, dir, locked, state)
}

func (e *Engine) updateResource(ctx context.Context, s *session, name string) error {
	rc, dir, err := e.resourceDir(s, name)
	if err != nil {
		return err
	}
	if rc.URL == "" {
		return errs.Errorf(errs.NoDownloadURL, "SYNC_NO_URL", "resource %q has no download url", name)
	}
	e.logger().Info("resolving resource", "resource", name, "url", rc.URL)
	resolved, err := e.References.Resolve(ctx, rc.URL)
	if err != nil {
		return fmt.Errorf("SYNC_RESOURCE: %s: %w", name, err)
	}
	locked, _ := s.lock.ResourceURL(name)
	state, err := store.Classify(dir, resolved)
	if err != nil {
		return err
	}
	if locked == resolved && state == store.UpToDate {
		e.logger().Info("resource already up to date", "resource", name)
		e.Audit.Record("update-resource", audit.PhaseSkip, "already up to date", map[string]string{"resource": name, "url": resolved})
		s.report.Skipped = append(s.report.Skipped, name)
		return nil
	}
	return e.applyResource(ctx, s, name, rc, dir, resolved, state)
}

func (e *Engine) applyResource(ctx context.Context, s *session, name string, rc config.ResourceConfig, dir, url string, prior store.EntityState) error {
	e.logger().Info("installing resource", "resource", name, "url", url)
	res, err := e.Installer.Install(ctx, installer.Request{
		URL:        url,
		Dest:       dir,
		NestedPath: rc.NestedPathOrDefault(),
		Format:     installer.Zip,
		Source:     url,
		IgnoreAll:  true,
	})
	if err != nil {
		return fmt.Errorf("SYNC_RESOURCE: %s: %w", name, err)
	}
	s.lock.SetResourceURL(name, url)
	if err := e.persist(s); err != nil {
		return err
	}
	if prior == store.Uninstalled {
		s.report.Installed = append(s.report.Installed, name)
	} else {
		s.report.Updated = append(s.report.Updated, name)
	}
	e.Audit.Record("resource", audit.PhaseCommit, "installed", map[string]string{
		"resource": name,
		"url":      res.URL,
		"replaced": fmt.Sprint(res.Replaced),
	})
	return nil
}
