package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"dxm/internal/channel"
	"dxm/internal/errs"
)

// Validate checks the manifest for values that would make an operation
// touch paths outside the server root.
func Validate(m Manifest) error {
	if m.Artifact.Channel != "" && !m.Artifact.Channel.Valid() {
		_, err := channel.Parse(string(m.Artifact.Channel))
		return fmt.Errorf("MAN_INVALID: artifact: %w", err)
	}
	for name, r := range m.Resources {
		if err := ValidateResourceName(name); err != nil {
			return err
		}
		if err := validateRelative("category", name, r.Category); err != nil {
			return err
		}
		if err := validateRelative("nested_path", name, r.NestedPath); err != nil {
			return err
		}
	}
	return nil
}

// ValidateResourceName rejects names that are not a single path element.
func ValidateResourceName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return errs.Errorf(errs.PathSafety, "MAN_RESOURCE_NAME", "invalid resource name %q", name)
	}
	return nil
}

func validateRelative(field, name, p string) error {
	if p == "" {
		return nil
	}
	if path.IsAbs(p) || filepath.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return errs.Errorf(errs.PathSafety, "MAN_RESOURCE_PATH", "resource %q: %s %q must stay inside its parent", name, field, p)
	}
	return nil
}
