package sync

import (
	"sort"

	"dxm/internal/config"
	"dxm/internal/installer"
	"dxm/internal/store"
)

// EntityStatus describes where one entity sits in its install lifecycle.
type EntityStatus struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Dir       string            `json:"dir"`
	State     store.EntityState `json:"state"`
	Locked    string            `json:"locked,omitempty"`
	Installed string            `json:"installed,omitempty"`
	// Error is set when the entity's directory could not be derived.
	Error string `json:"error,omitempty"`
}

const (
	KindArtifact = "artifact"
	KindResource = "resource"
)

// Status classifies the artifact and every resource of root without
// touching the network or taking the writer lock.
func Status(root string) ([]EntityStatus, error) {
	m, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	lock, err := store.LoadLockfile(root)
	if err != nil {
		return nil, err
	}
	return StatusOf(root, m, lock)
}

// StatusOf classifies entities from already loaded documents.
func StatusOf(root string, m config.Manifest, lock store.Lockfile) ([]EntityStatus, error) {
	out := make([]EntityStatus, 0, len(m.Resources)+1)
	art, err := classify(KindArtifact, KindArtifact, m.ArtifactDir(root), lock.ArtifactVersion)
	if err != nil {
		return nil, err
	}
	out = append(out, art)

	names := make([]string, 0, len(m.Resources))
	for name := range m.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		locked, _ := lock.ResourceURL(name)
		dir, err := installer.EntryDir(m.CategoryDir(root, m.Resources[name]), name)
		if err != nil {
			out = append(out, EntityStatus{Name: name, Kind: KindResource, State: store.Uninstalled, Locked: locked, Error: err.Error()})
			continue
		}
		st, err := classify(name, KindResource, dir, locked)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func classify(name, kind, dir, locked string) (EntityStatus, error) {
	state, err := store.Classify(dir, locked)
	if err != nil {
		return EntityStatus{}, err
	}
	installed, _, err := store.ReadSourcefile(dir)
	if err != nil {
		return EntityStatus{}, err
	}
	return EntityStatus{Name: name, Kind: kind, Dir: dir, State: state, Locked: locked, Installed: installed}, nil
}
