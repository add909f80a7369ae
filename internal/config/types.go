package config

import "dxm/internal/channel"

// Manifest is the dxm.toml document at a server root.
type Manifest struct {
	Artifact  ArtifactConfig            `toml:"artifact" json:"artifact"`
	Server    ServerConfig              `toml:"server" json:"server"`
	Resources map[string]ResourceConfig `toml:"resources,omitempty" json:"resources,omitempty"`
}

// ArtifactConfig declares the FXServer runtime. Empty fields fall back to
// package defaults through the accessor methods.
type ArtifactConfig struct {
	Path    string          `toml:"path,omitempty" json:"path,omitempty"`
	Version string          `toml:"version,omitempty" json:"version,omitempty"`
	Channel channel.Channel `toml:"channel,omitempty" json:"channel,omitempty"`
}

type ServerConfig struct {
	Data string `toml:"data,omitempty" json:"data,omitempty"`
}

// ResourceConfig declares one third-party resource. The map key in
// Manifest.Resources is its name.
type ResourceConfig struct {
	URL        string `toml:"url,omitempty" json:"url,omitempty"`
	Category   string `toml:"category,omitempty" json:"category,omitempty"`
	NestedPath string `toml:"nested_path,omitempty" json:"nestedPath,omitempty"`
}
