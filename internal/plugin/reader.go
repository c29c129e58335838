// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/typeref"
)

// FacetReader computes one facet of a plugin from its manifest.
type FacetReader interface {
	// Key is the manifest key under facets: the reader handles.
	Key() string
	// Type is the declared facet data type.
	Type() typeref.Type
	// Activation tells the loader registry whether the facet needs a loader.
	Activation() facet.Activation
	// Read returns the facet data. Returning nil without an error is a read
	// failure.
	Read(m *Manifest) (any, error)
}

// YAMLReader decodes the manifest node facets.<key> into a T.
type YAMLReader[T any] struct {
	key  string
	mode facet.Activation
}

// Compile-time interface check.
var _ FacetReader = (*YAMLReader[Info])(nil)

// NewYAMLReader creates a reader for the facets.<key> node.
func NewYAMLReader[T any](key string, mode facet.Activation) *YAMLReader[T] {
	return &YAMLReader[T]{key: key, mode: mode}
}

// Key implements FacetReader.
func (r *YAMLReader[T]) Key() string { return r.key }

// Type implements FacetReader.
func (r *YAMLReader[T]) Type() typeref.Type { return typeref.Of[T]() }

// Activation implements FacetReader.
func (r *YAMLReader[T]) Activation() facet.Activation { return r.mode }

// Read implements FacetReader.
func (r *YAMLReader[T]) Read(m *Manifest) (any, error) {
	raw, ok := m.Facets[r.key]
	if !ok {
		return nil, nil
	}
	var v T
	if err := raw.Decode(&v); err != nil {
		return nil, oops.Code(CodeFacetReadFailed).
			In("plugin").
			With("plugin", m.Name).
			With("facet", r.key).
			Wrap(joinCause(ErrFacetReadFailed, err))
	}
	return v, nil
}

// Info is descriptive plugin metadata. It is a passive facet: hosts read it
// without any loader.
type Info struct {
	Authors  []string `yaml:"authors,omitempty"`
	Homepage string   `yaml:"homepage,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// InfoKey is the manifest key of the Info facet.
const InfoKey = "info"

// InfoReader returns the reader for the Info facet.
func InfoReader() FacetReader {
	return NewYAMLReader[Info](InfoKey, facet.Passive)
}
