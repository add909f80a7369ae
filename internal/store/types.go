package store

import "fmt"

// Lockfile records the last successfully resolved reference of every entity.
type Lockfile struct {
	// ArtifactVersion is the installed FXServer build number.
	ArtifactVersion string `toml:"artifact_version,omitempty" json:"artifactVersion,omitempty"`
	// ResourceURLs maps resource names to resolved archive URLs.
	ResourceURLs map[string]string `toml:"resource_urls" json:"resourceUrls"`
}

// EntityState is the reconciliation state of one installed directory.
type EntityState int

const (
	Uninstalled EntityState = iota
	Stale
	UpToDate
)

func (s EntityState) String() string {
	switch s {
	case Stale:
		return "stale"
	case UpToDate:
		return "up-to-date"
	default:
		return "uninstalled"
	}
}

func (s EntityState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EntityState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uninstalled":
		*s = Uninstalled
	case "stale":
		*s = Stale
	case "up-to-date":
		*s = UpToDate
	default:
		return fmt.Errorf("unknown entity state %q", text)
	}
	return nil
}
