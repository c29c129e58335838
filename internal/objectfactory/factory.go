// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package objectfactory composes independent backing registries behind one
// registration and lookup API.
//
// Registration goes to the first backing registry, in aggregation order, that
// accepts it. Lookups walk the same order: Get returns the best match of the
// first registry holding one, GetAll concatenates matches of every registry.
package objectfactory

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/typeref"
)

// DefaultRuntimeName is the name of the default runtime registry.
const DefaultRuntimeName = "runtime"

// Registrar is the registration and lookup surface handed to collaborators
// such as facet loaders.
type Registrar interface {
	RegisterObject(obj any, types ...typeref.Type) (*Registration, error)
	RegisterReference(ref Reference, types ...typeref.Type) (*Registration, error)
	Get(ctx context.Context, t typeref.Type, q Query) (any, bool, error)
	GetAll(ctx context.Context, t typeref.Type, q Query) ([]any, error)
}

// Metrics receives factory events. Implementations must be safe for concurrent use.
type Metrics interface {
	// SetRegistrations reports the current entry count of a backing registry.
	SetRegistrations(backing string, n int)
	// ObserveLookup records a lookup outcome: "hit", "miss" or "error".
	ObserveLookup(result string)
}

type noopMetrics struct{}

func (noopMetrics) SetRegistrations(string, int) {}
func (noopMetrics) ObserveLookup(string)         {}

// Compile-time interface check.
var _ Registrar = (*Factory)(nil)

// Factory is the aggregate object factory.
//
// A single lock scoped to the aggregate orders registration, revocation and
// Clear, so Clear is atomic as observed by concurrent lookups. Lookups resolve
// references outside the lock, which lets providers call back into the Factory.
type Factory struct {
	mu           sync.RWMutex
	newDefault   func() BackingRegistry
	def          BackingRegistry
	chain        []BackingRegistry
	defaultFirst bool
	metrics      Metrics
}

// Option configures a Factory.
type Option func(*Factory)

// WithBacking appends a backing registry to the aggregation order.
func WithBacking(r BackingRegistry) Option {
	return func(f *Factory) {
		f.chain = append(f.chain, r)
	}
}

// WithDefaultBacking replaces the constructor of the always-present default
// backing registry. It is called at construction and again on every Clear.
func WithDefaultBacking(newFn func() BackingRegistry) Option {
	return func(f *Factory) {
		if newFn != nil {
			f.newDefault = newFn
		}
	}
}

// WithDefaultLast places the default registry after the configured backing
// registries instead of in front of them.
func WithDefaultLast() Option {
	return func(f *Factory) {
		f.defaultFirst = false
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *Factory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// New creates a Factory. Unless configured otherwise, its default backing
// registry is a RuntimeRegistry leading the aggregation order.
func New(opts ...Option) *Factory {
	f := &Factory{
		newDefault: func() BackingRegistry {
			return NewRuntimeRegistry(DefaultRuntimeName)
		},
		defaultFirst: true,
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.installDefault()
	return f
}

// installDefault creates a fresh default registry and links it into the chain.
// Callers hold f.mu or have exclusive access.
func (f *Factory) installDefault() {
	f.def = f.newDefault()
	if f.defaultFirst {
		f.chain = append([]BackingRegistry{f.def}, f.chain...)
	} else {
		f.chain = append(f.chain, f.def)
	}
	f.metrics.SetRegistrations(f.def.Name(), f.def.Len())
}

// AddBacking appends a backing registry to the aggregation order.
func (f *Factory) AddBacking(r BackingRegistry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain = append(f.chain, r)
	f.metrics.SetRegistrations(r.Name(), r.Len())
}

// Default returns the current default backing registry. Clear replaces it.
func (f *Factory) Default() BackingRegistry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.def
}

// Backings returns the names of the backing registries in aggregation order.
func (f *Factory) Backings() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.chain))
	for i, r := range f.chain {
		names[i] = r.Name()
	}
	return names
}

// RegisterObject registers obj under every type in types, or under its own
// dynamic type when types is empty.
func (f *Factory) RegisterObject(obj any, types ...typeref.Type) (*Registration, error) {
	if isNil(obj) {
		return nil, oops.Code(CodeInvalidRegistration).In("objectfactory").Wrap(ErrNilObject)
	}
	return f.RegisterReference(Singleton(obj), types...)
}

// isNil reports whether v is nil or a typed nil of a nilable kind.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// RegisterReference registers ref under every type in types, or under
// ref.Type() when types is empty. The returned Registration revokes all of
// those types at once.
func (f *Factory) RegisterReference(ref Reference, types ...typeref.Type) (*Registration, error) {
	published, err := publicationTypes(ref, types)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, backing := range f.chain {
		id, err := backing.Register(ref, published)
		if errors.Is(err, ErrRegistrationRefused) {
			continue
		}
		if err != nil {
			return nil, oops.In("objectfactory").
				With("backing", backing.Name()).
				With("types", typeNames(published)).
				Wrap(err)
		}

		f.metrics.SetRegistrations(backing.Name(), backing.Len())
		slog.Debug("registered object",
			"backing", backing.Name(),
			"id", id,
			"types", typeNames(published))

		return newRegistration(id, backing, published, f.unregister), nil
	}

	return nil, oops.Code(CodeRegistrationRejected).
		In("objectfactory").
		With("types", typeNames(published)).
		Wrap(ErrRegistrationRejected)
}

// unregister removes a registration from the backing registry that accepted it.
func (f *Factory) unregister(backing BackingRegistry, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !backing.Unregister(id) {
		return
	}
	f.metrics.SetRegistrations(backing.Name(), backing.Len())
	slog.Debug("revoked object registration", "backing", backing.Name(), "id", id)
}

// snapshot returns the references for t per backing registry, outer first.
func (f *Factory) snapshot(t typeref.Type, q Query, firstOnly bool) [][]Reference {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var found [][]Reference
	for _, backing := range f.chain {
		refs := backing.Lookup(t, q)
		if len(refs) == 0 {
			continue
		}
		found = append(found, refs)
		if firstOnly {
			break
		}
	}
	return found
}

// Get returns the highest-priority object published under t by the first
// backing registry that holds a match. A missing object is reported through
// the boolean, never as an error.
func (f *Factory) Get(ctx context.Context, t typeref.Type, q Query) (any, bool, error) {
	found := f.snapshot(t, q, true)
	if len(found) == 0 {
		f.metrics.ObserveLookup("miss")
		return nil, false, nil
	}

	obj, err := found[0][0].Object(ctx)
	if err != nil {
		f.metrics.ObserveLookup("error")
		return nil, false, err
	}
	f.metrics.ObserveLookup("hit")
	return obj, true, nil
}

// GetAll returns every object published under t, grouped by backing registry
// in aggregation order and by priority within each registry.
func (f *Factory) GetAll(ctx context.Context, t typeref.Type, q Query) ([]any, error) {
	found := f.snapshot(t, q, false)

	var objs []any
	for _, refs := range found {
		for _, ref := range refs {
			obj, err := ref.Object(ctx)
			if err != nil {
				f.metrics.ObserveLookup("error")
				return nil, err
			}
			objs = append(objs, obj)
		}
	}

	if len(objs) == 0 {
		f.metrics.ObserveLookup("miss")
	} else {
		f.metrics.ObserveLookup("hit")
	}
	return objs, nil
}

// Clear empties every backing registry and resets the Factory to its default
// chain: a freshly constructed default registry. Backing registries added
// through options or AddBacking are dropped.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, backing := range f.chain {
		backing.Clear()
		f.metrics.SetRegistrations(backing.Name(), 0)
	}
	f.chain = nil
	f.installDefault()

	slog.Debug("object factory cleared")
}

// publicationTypes validates the requested types against ref and returns a
// deduplicated list. An empty request publishes under ref.Type().
func publicationTypes(ref Reference, types []typeref.Type) ([]typeref.Type, error) {
	if ref == nil {
		return nil, oops.Code(CodeInvalidRegistration).In("objectfactory").Wrap(ErrNilObject)
	}
	if s, ok := ref.(*singletonReference); ok && isNil(s.obj) {
		return nil, oops.Code(CodeInvalidRegistration).In("objectfactory").Wrap(ErrNilObject)
	}
	refType := ref.Type()
	if refType.IsZero() {
		return nil, oops.Code(CodeInvalidRegistration).In("objectfactory").Wrap(ErrNilObject)
	}
	if len(types) == 0 {
		return []typeref.Type{refType}, nil
	}

	published := make([]typeref.Type, 0, len(types))
	for _, t := range types {
		if t.IsZero() {
			return nil, oops.Code(CodeInvalidRegistration).In("objectfactory").Errorf("publication type cannot be empty")
		}
		if !refType.AssignableTo(t) {
			return nil, oops.Code(CodeTypeMismatch).
				In("objectfactory").
				With("type", t.Name()).
				With("object_type", refType.Name()).
				Wrap(ErrTypeMismatch)
		}
		if !slices.Contains(published, t) {
			published = append(published, t)
		}
	}
	return published, nil
}

func typeNames(types []typeref.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name()
	}
	return names
}
