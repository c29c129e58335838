// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin discovers plugin manifests and drives the facet lifecycle
// of installed plugins.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name looked up in each plugin directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name        string              `yaml:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version     string              `yaml:"version" jsonschema:"minLength=1"`
	HostVersion string              `yaml:"host-version,omitempty" jsonschema:"description=Semantic version constraint the host must satisfy"`
	Description string              `yaml:"description,omitempty"`
	Facets      map[string]RawFacet `yaml:"facets,omitempty" jsonschema:"description=Facet data keyed by facet name"`
}

// RawFacet is the undecoded YAML of one manifest facet.
type RawFacet struct {
	node yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RawFacet) UnmarshalYAML(value *yaml.Node) error {
	r.node = *value
	return nil
}

// Decode decodes the facet into v.
func (r RawFacet) Decode(v any) error {
	return r.node.Decode(v)
}

// IsZero reports whether the facet holds no YAML.
func (r RawFacet) IsZero() bool {
	return r.node.Kind == 0
}

// JSONSchema implements the jsonschema reflector hook. Facet content is
// validated by its reader, not by the manifest schema.
func (RawFacet) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{}
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.Code(CodeManifestInvalid).In("plugin").Wrapf(ErrInvalidManifest, "manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code(CodeManifestInvalid).In("plugin").Wrapf(joinCause(ErrInvalidManifest, err), "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	invalid := oops.Code(CodeManifestInvalid).In("plugin").With("plugin", m.Name)

	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return invalid.Wrapf(ErrInvalidManifest, "name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return invalid.Wrapf(ErrInvalidManifest, "name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return invalid.Wrapf(ErrInvalidManifest, "version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return invalid.With("version", m.Version).Wrapf(joinCause(ErrInvalidManifest, err), "version must be a semantic version")
	}

	if m.HostVersion != "" {
		if _, err := semver.NewConstraint(m.HostVersion); err != nil {
			return invalid.With("host_version", m.HostVersion).Wrapf(joinCause(ErrInvalidManifest, err), "host-version must be a version constraint")
		}
	}

	for key, raw := range m.Facets {
		if key == "" {
			return invalid.Wrapf(ErrInvalidManifest, "facet key cannot be empty")
		}
		if raw.IsZero() {
			return invalid.With("facet", key).Wrapf(ErrInvalidManifest, "facet %q has no content", key)
		}
	}

	return nil
}

// SemVer returns the parsed plugin version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, oops.Code(CodeManifestInvalid).In("plugin").With("plugin", m.Name).Wrap(joinCause(ErrInvalidManifest, err))
	}
	return v, nil
}

// SupportsHost reports whether host satisfies the manifest's host-version
// constraint. A manifest without a constraint supports every host.
func (m *Manifest) SupportsHost(host *semver.Version) (bool, error) {
	if m.HostVersion == "" || host == nil {
		return true, nil
	}
	c, err := semver.NewConstraint(m.HostVersion)
	if err != nil {
		return false, oops.Code(CodeManifestInvalid).In("plugin").With("plugin", m.Name).Wrap(joinCause(ErrInvalidManifest, err))
	}
	return c.Check(host), nil
}

// HasFacet reports whether the manifest declares the facet key.
func (m *Manifest) HasFacet(key string) bool {
	_, ok := m.Facets[key]
	return ok
}
