package config

import "fmt"

// UpsertResource adds or replaces a resource entry.
func UpsertResource(m *Manifest, name string, r ResourceConfig) error {
	if m == nil {
		return fmt.Errorf("MAN_RESOURCE: nil manifest")
	}
	if err := ValidateResourceName(name); err != nil {
		return err
	}
	if m.Resources == nil {
		m.Resources = map[string]ResourceConfig{}
	}
	m.Resources[name] = r
	*m = Normalize(*m)
	return Validate(*m)
}

// RemoveResource drops a resource entry and reports whether it existed.
func RemoveResource(m *Manifest, name string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.Resources[name]; !ok {
		return false
	}
	delete(m.Resources, name)
	return true
}
