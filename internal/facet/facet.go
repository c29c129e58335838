// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package facet attaches typed data to plugins and drives the loaders that
// turn that data into active host-side state.
//
// A Store holds at most one value per (plugin, facet type) pair. A
// LoaderRegistry maps a facet's declared data type, by exact fully qualified
// name, to the Loader that activates it and hands back a Revocation used to
// unload it again.
package facet

import "github.com/holomush/plugincore/internal/typeref"

// Plugin is the identity facets are attached to. IDs must be stable for the
// lifetime of the plugin installation.
type Plugin interface {
	ID() string
}

// PluginID is a Plugin identified by its string value.
type PluginID string

// ID implements Plugin.
func (p PluginID) ID() string {
	return string(p)
}

// Facet describes a kind of data attachable to a plugin.
type Facet interface {
	// DataType is the declared type of the facet data. Loaders are discovered
	// by its fully qualified name.
	DataType() typeref.Type
}

// Activation tells the loader registry what to do when no loader exists.
type Activation int

// Activation modes.
const (
	// Passive facets are inert data; they load without a loader.
	Passive Activation = iota
	// Active facets must be loaded by a registered loader.
	Active
)

// String implements fmt.Stringer.
func (a Activation) String() string {
	switch a {
	case Passive:
		return "passive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Activator is implemented by facets that declare their activation mode.
// Facets that do not implement it are Passive.
type Activator interface {
	Activation() Activation
}

// ActivationOf returns the declared activation mode of f.
func ActivationOf(f Facet) Activation {
	if a, ok := f.(Activator); ok {
		return a.Activation()
	}
	return Passive
}

// Instance is a facet together with its data.
type Instance struct {
	Type typeref.Type
	Data any
	Mode Activation
}

// New returns an Instance whose declared type is T.
func New[T any](data T, mode Activation) Instance {
	return Instance{Type: typeref.Of[T](), Data: data, Mode: mode}
}

// DataType implements Facet.
func (i Instance) DataType() typeref.Type {
	return i.Type
}

// Activation implements Activator.
func (i Instance) Activation() Activation {
	return i.Mode
}

// Value returns the facet data.
func (i Instance) Value() any {
	return i.Data
}

// valuer is implemented by facets that carry their data.
type valuer interface {
	Value() any
}

// As returns the data carried by f as a T.
func As[T any](f Facet) (T, bool) {
	var zero T
	v, ok := f.(valuer)
	if !ok {
		return zero, false
	}
	typed, ok := v.Value().(T)
	return typed, ok
}
