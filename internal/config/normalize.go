package config

import (
	"path"
	"strings"

	"dxm/internal/channel"
)

// Normalize trims user input and canonicalises relative paths.
func Normalize(m Manifest) Manifest {
	m.Artifact.Path = strings.TrimSpace(m.Artifact.Path)
	m.Artifact.Version = strings.TrimSpace(m.Artifact.Version)
	m.Artifact.Channel = channel.Channel(strings.ToLower(strings.TrimSpace(string(m.Artifact.Channel))))
	m.Server.Data = strings.TrimSpace(m.Server.Data)
	if m.Resources == nil {
		m.Resources = map[string]ResourceConfig{}
	}
	for name, r := range m.Resources {
		r.URL = strings.TrimSpace(r.URL)
		r.Category = cleanRelative(r.Category)
		r.NestedPath = cleanRelative(r.NestedPath)
		m.Resources[name] = r
	}
	return m
}

func cleanRelative(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
