// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory

import (
	"context"
	"maps"

	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/typeref"
)

// Reference is a registered object source. Singleton references always yield
// the same instance; prototype references may compute a new one per lookup.
type Reference interface {
	// Type is the most specific type the reference produces.
	Type() typeref.Type
	// Object resolves the referenced instance.
	Object(ctx context.Context) (any, error)
	// Priority orders references within one backing registry, highest first.
	Priority() int
	// Properties are matched by lookup queries. Callers must not modify the map.
	Properties() map[string]string
}

// ReferenceOption configures references built by Singleton and Prototype.
type ReferenceOption func(*referenceAttrs)

type referenceAttrs struct {
	priority   int
	properties map[string]string
}

// WithPriority sets the reference priority. The default is 0.
func WithPriority(priority int) ReferenceOption {
	return func(a *referenceAttrs) {
		a.priority = priority
	}
}

// WithProperty adds a single lookup property.
func WithProperty(key, value string) ReferenceOption {
	return func(a *referenceAttrs) {
		if a.properties == nil {
			a.properties = make(map[string]string)
		}
		a.properties[key] = value
	}
}

// WithProperties adds lookup properties. The map is copied.
func WithProperties(props map[string]string) ReferenceOption {
	return func(a *referenceAttrs) {
		if a.properties == nil {
			a.properties = make(map[string]string, len(props))
		}
		maps.Copy(a.properties, props)
	}
}

func newAttrs(opts []ReferenceOption) referenceAttrs {
	var a referenceAttrs
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// singletonReference resolves to a fixed instance.
type singletonReference struct {
	obj any
	referenceAttrs
}

// Singleton returns a reference to a fixed instance.
func Singleton(obj any, opts ...ReferenceOption) Reference {
	return &singletonReference{obj: obj, referenceAttrs: newAttrs(opts)}
}

func (r *singletonReference) Type() typeref.Type                  { return typeref.OfValue(r.obj) }
func (r *singletonReference) Object(context.Context) (any, error) { return r.obj, nil }
func (r *singletonReference) Priority() int                       { return r.priority }
func (r *singletonReference) Properties() map[string]string       { return r.properties }

// ProviderFunc computes an instance on demand.
type ProviderFunc func(ctx context.Context) (any, error)

// prototypeReference computes its instance on every lookup.
type prototypeReference struct {
	typ     typeref.Type
	provide ProviderFunc
	referenceAttrs
}

// Prototype returns a reference whose instance is recomputed by provide on
// every lookup. Each computed instance must satisfy t.
func Prototype(t typeref.Type, provide ProviderFunc, opts ...ReferenceOption) Reference {
	return &prototypeReference{typ: t, provide: provide, referenceAttrs: newAttrs(opts)}
}

func (r *prototypeReference) Type() typeref.Type            { return r.typ }
func (r *prototypeReference) Priority() int                 { return r.priority }
func (r *prototypeReference) Properties() map[string]string { return r.properties }

func (r *prototypeReference) Object(ctx context.Context) (any, error) {
	if r.provide == nil {
		return nil, oops.Code(CodeResolveFailed).In("objectfactory").With("type", r.typ.Name()).Errorf("prototype has no provider")
	}
	obj, err := r.provide(ctx)
	if err != nil {
		return nil, oops.Code(CodeResolveFailed).In("objectfactory").With("type", r.typ.Name()).Wrap(err)
	}
	if !r.typ.Implements(obj) {
		return nil, oops.Code(CodeTypeMismatch).
			In("objectfactory").
			With("type", r.typ.Name()).
			With("got", typeref.OfValue(obj).Name()).
			Wrap(ErrTypeMismatch)
	}
	return obj, nil
}
