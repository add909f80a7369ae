package sync

import (
	"context"
	"sort"
)

// InstallAll installs the artifact and then every resource in name order.
func (e *Engine) InstallAll(ctx context.Context, root string) (Report, error) {
	return e.run(ctx, root, "install", func(ctx context.Context, s *session) error {
		if err := e.installArtifact(ctx, s, ArtifactOptions{}); err != nil {
			return err
		}
		return e.eachResource(ctx, s, "install", e.installResource)
	})
}

// UpdateAll updates the artifact from its channel and then every resource.
func (e *Engine) UpdateAll(ctx context.Context, root string) (Report, error) {
	return e.run(ctx, root, "update", func(ctx context.Context, s *session) error {
		if err := e.updateArtifact(ctx, s, ArtifactOptions{}); err != nil {
			return err
		}
		return e.eachResource(ctx, s, "update", e.updateResource)
	})
}

// UpdateResources updates every resource, leaving the artifact alone.
func (e *Engine) UpdateResources(ctx context.Context, root string) (Report, error) {
	return e.run(ctx, root, "update-resources", func(ctx context.Context, s *session) error {
		return e.eachResource(ctx, s, "update-resources", e.updateResource)
	})
}

// eachResource runs fn sequentially. A resource without a download URL is
// reported as a warning; any other error stops the batch.
func (e *Engine) eachResource(ctx context.Context, s *session, op string, fn func(context.Context, *session, string) error) error {
	for _, name := range resourceNames(s) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, s, name); err != nil {
			if batchable(err) {
				e.warn(s, op, name, err)
				continue
			}
			return err
		}
	}
	return e.persist(s)
}

func resourceNames(s *session) []string {
	names := make([]string, 0, len(s.manifest.Resources))
	for name := range s.manifest.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
