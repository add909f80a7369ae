package config

import (
	"path/filepath"

	"dxm/internal/channel"
)

const (
	ManifestName       = "dxm.toml"
	DefaultArtifactDir = "artifact"
	DefaultDataDir     = "data"
	resourcesDirName   = "resources"

	// DefaultCategory and DefaultNestedPath select the directory itself.
	DefaultCategory   = "."
	DefaultNestedPath = "."
	maxAncestorSearch = 50
)

// Default returns the manifest written by init.
func Default() Manifest {
	return Manifest{
		Artifact:  ArtifactConfig{Path: DefaultArtifactDir, Channel: channel.Default},
		Server:    ServerConfig{Data: DefaultDataDir},
		Resources: map[string]ResourceConfig{},
	}
}

// PathOrDefault returns the artifact directory relative to the manifest.
func (a ArtifactConfig) PathOrDefault() string {
	if a.Path == "" {
		return DefaultArtifactDir
	}
	return a.Path
}

func (a ArtifactConfig) ChannelOrDefault() channel.Channel {
	if a.Channel == "" {
		return channel.Default
	}
	return a.Channel
}

func (s ServerConfig) DataOrDefault() string {
	if s.Data == "" {
		return DefaultDataDir
	}
	return s.Data
}

func (r ResourceConfig) CategoryOrDefault() string {
	if r.Category == "" {
		return DefaultCategory
	}
	return r.Category
}

func (r ResourceConfig) NestedPathOrDefault() string {
	if r.NestedPath == "" {
		return DefaultNestedPath
	}
	return r.NestedPath
}

// ArtifactDir returns the absolute artifact install directory for root.
func (m Manifest) ArtifactDir(root string) string {
	return resolve(root, m.Artifact.PathOrDefault())
}

func (m Manifest) DataDir(root string) string {
	return resolve(root, m.Server.DataOrDefault())
}

// ResourcesDir is the root every resource category lives under.
func (m Manifest) ResourcesDir(root string) string {
	return filepath.Join(m.DataDir(root), resourcesDirName)
}

// CategoryDir is the directory a resource is installed into.
func (m Manifest) CategoryDir(root string, r ResourceConfig) string {
	return filepath.Join(m.ResourcesDir(root), filepath.FromSlash(r.CategoryOrDefault()))
}

func resolve(root, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
