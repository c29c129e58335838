// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facet

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/typeref"
)

const tracerName = "github.com/holomush/plugincore/internal/facet"

// Loader activates a facet of a plugin inside the host.
//
// Load performs the host-side side effects and returns a closer that reverses
// them. A loader that fails must undo its own partial work before returning
// the error. A nil closer with a nil error means there is nothing to undo.
type Loader interface {
	Load(ctx context.Context, p Plugin, f Facet, objects objectfactory.Registrar) (io.Closer, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, p Plugin, f Facet, objects objectfactory.Registrar) (io.Closer, error)

// Load implements Loader.
func (fn LoaderFunc) Load(ctx context.Context, p Plugin, f Facet, objects objectfactory.Registrar) (io.Closer, error) {
	return fn(ctx, p, f, objects)
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close implements io.Closer.
func (fn CloserFunc) Close() error {
	return fn()
}

// ConflictPolicy decides what happens when a second loader is registered for
// a facet type.
type ConflictPolicy int

// Conflict policies.
const (
	// ConflictReplace keeps the last registered loader.
	ConflictReplace ConflictPolicy = iota
	// ConflictReject refuses the second registration.
	ConflictReject
)

// MissingLoaderPolicy decides what Load does when no loader is registered.
type MissingLoaderPolicy int

// Missing loader policies.
const (
	// MissingIgnore loads passive facets as inert data and fails active ones.
	MissingIgnore MissingLoaderPolicy = iota
	// MissingReport fails every facet without a loader.
	MissingReport
)

// ParseConflictPolicy parses "replace" or "reject".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ConflictReplace, nil
	case "reject":
		return ConflictReject, nil
	default:
		return 0, oops.Code(CodeInvalidPolicy).In("facet").With("policy", s).Errorf("conflict policy must be 'replace' or 'reject', got %q", s)
	}
}

// ParseMissingLoaderPolicy parses "ignore" or "report".
func ParseMissingLoaderPolicy(s string) (MissingLoaderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return MissingIgnore, nil
	case "report":
		return MissingReport, nil
	default:
		return 0, oops.Code(CodeInvalidPolicy).In("facet").With("policy", s).Errorf("missing loader policy must be 'ignore' or 'report', got %q", s)
	}
}

// Metrics receives loader events. Implementations must be safe for concurrent use.
type Metrics interface {
	// ObserveLoad records a load outcome: "loaded", "inert", "no_loader" or "failed".
	ObserveLoad(facetType, result string)
	// ObserveUnload records a revocation that ran a loader's closer.
	ObserveUnload(facetType string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLoad(string, string) {}
func (noopMetrics) ObserveUnload(string)       {}

// LoaderRegistry maps facet data types to loaders.
//
// Discovery is an exact match on the fully qualified name of a facet's
// declared data type: a loader registered for an interface is not used for a
// facet declared with an implementing type. LoaderRegistry is safe for
// concurrent use; it does not deduplicate concurrent loads of the same facet.
type LoaderRegistry struct {
	mu       sync.RWMutex
	loaders  map[string]Loader
	conflict ConflictPolicy
	missing  MissingLoaderPolicy
	metrics  Metrics
	tracer   trace.Tracer
}

// LoaderRegistryOption configures a LoaderRegistry.
type LoaderRegistryOption func(*LoaderRegistry)

// WithConflictPolicy sets the conflict policy. The default is ConflictReplace.
func WithConflictPolicy(p ConflictPolicy) LoaderRegistryOption {
	return func(r *LoaderRegistry) {
		r.conflict = p
	}
}

// WithMissingLoaderPolicy sets the missing loader policy. The default is MissingIgnore.
func WithMissingLoaderPolicy(p MissingLoaderPolicy) LoaderRegistryOption {
	return func(r *LoaderRegistry) {
		r.missing = p
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) LoaderRegistryOption {
	return func(r *LoaderRegistry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracerProvider sets the tracer provider used for load spans. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) LoaderRegistryOption {
	return func(r *LoaderRegistry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewLoaderRegistry creates an empty registry.
func NewLoaderRegistry(opts ...LoaderRegistryOption) *LoaderRegistry {
	r := &LoaderRegistry{
		loaders: make(map[string]Loader),
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers l for facets whose declared data type is t.
func (r *LoaderRegistry) Register(t typeref.Type, l Loader) error {
	if err := typeref.Named(t); err != nil {
		return oops.Code(CodeInvalidFacetType).In("facet").With("facet_type", t.String()).Wrap(err)
	}
	return r.RegisterNamed(t.Name(), l)
}

// RegisterNamed registers l under a fully qualified type name, as produced by
// typeref.Type.Name. It is used by registration mechanisms that only know the
// name, such as declarative descriptors.
func (r *LoaderRegistry) RegisterNamed(name string, l Loader) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code(CodeInvalidFacetType).In("facet").Errorf("facet type name cannot be empty")
	}
	if l == nil {
		return oops.Code(CodeInvalidLoader).In("facet").With("facet_type", name).Errorf("loader cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[name]; exists {
		if r.conflict == ConflictReject {
			return oops.Code(CodeLoaderConflict).In("facet").With("facet_type", name).Wrap(ErrLoaderConflict)
		}
		slog.Warn("replacing facet loader", "facet_type", name)
	}
	r.loaders[name] = l
	return nil
}

// Unregister removes the loader for t and reports whether one was registered.
func (r *LoaderRegistry) Unregister(t typeref.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaders[t.Name()]; !ok {
		return false
	}
	delete(r.loaders, t.Name())
	return true
}

// Lookup returns the loader registered for t.
func (r *LoaderRegistry) Lookup(t typeref.Type) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loaders[t.Name()]
	return l, ok
}

// Names returns the registered facet type names, sorted.
func (r *LoaderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load activates f for p with the loader registered for f's declared data
// type and returns the Revocation that unloads it.
//
// Without a loader, a passive facet loads as inert data and the returned
// Revocation does nothing; an active facet, or any facet under MissingReport,
// fails with ErrNoLoaderFound. A loader failure is wrapped in
// ErrLoaderInitFailed and no Revocation is returned. A nil plugin or facet, or
// a facet without a data type, is rejected before any loader runs.
func (r *LoaderRegistry) Load(ctx context.Context, p Plugin, f Facet, objects objectfactory.Registrar) (*Revocation, error) {
	if isNil(p) {
		return nil, oops.Code(CodeInvalidPlugin).In("facet").Wrap(ErrNilPlugin)
	}
	if isNil(f) {
		return nil, oops.Code(CodeInvalidFacetType).In("facet").With("plugin", p.ID()).Wrap(ErrNilFacet)
	}
	typ := f.DataType()
	if typ.IsZero() {
		return nil, oops.Code(CodeInvalidFacetType).In("facet").With("plugin", p.ID()).Errorf("facet type cannot be empty")
	}
	name := typ.Name()

	ctx, span := r.tracer.Start(ctx, "facet.load", trace.WithAttributes(
		attribute.String("plugin.id", p.ID()),
		attribute.String("facet.type", name),
	))
	defer span.End()

	loader, ok := r.Lookup(typ)
	if !ok {
		activation := ActivationOf(f)
		if activation == Active || r.missing == MissingReport {
			r.metrics.ObserveLoad(name, "no_loader")
			err := oops.Code(CodeNoLoaderFound).
				In("facet").
				With("plugin", p.ID()).
				With("facet_type", name).
				With("activation", activation.String()).
				Wrap(ErrNoLoaderFound)
			span.RecordError(err)
			span.SetStatus(codes.Error, "no loader")
			return nil, err
		}

		r.metrics.ObserveLoad(name, "inert")
		slog.DebugContext(ctx, "no loader for passive facet", "plugin", p.ID(), "facet_type", name)
		return newRevocation(p.ID(), name, nil, r.metrics), nil
	}

	closer, err := loader.Load(ctx, p, f, objects)
	if err != nil {
		r.metrics.ObserveLoad(name, "failed")
		wrapped := oops.Code(CodeLoaderInitFailed).
			In("facet").
			With("plugin", p.ID()).
			With("facet_type", name).
			Wrapf(joinCause(ErrLoaderInitFailed, err), "load facet %s", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "loader failed")
		return nil, wrapped
	}

	r.metrics.ObserveLoad(name, "loaded")
	slog.InfoContext(ctx, "loaded facet", "plugin", p.ID(), "facet_type", name)
	return newRevocation(p.ID(), name, closer, r.metrics), nil
}

// Revocation unloads a facet loaded by a LoaderRegistry.
//
// Revoke runs the loader's closer at most once; later calls return nil.
// Revocation is safe for concurrent use.
type Revocation struct {
	plugin    string
	facetType string
	closer    io.Closer
	metrics   Metrics
	once      sync.Once
	done      chan struct{}
}

func newRevocation(plugin, facetType string, closer io.Closer, metrics Metrics) *Revocation {
	return &Revocation{
		plugin:    plugin,
		facetType: facetType,
		closer:    closer,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// Plugin returns the ID of the plugin the facet was loaded for.
func (r *Revocation) Plugin() string {
	return r.plugin
}

// FacetType returns the fully qualified facet type name.
func (r *Revocation) FacetType() string {
	return r.facetType
}

// Inert reports whether the facet was loaded without a loader, in which case
// revoking it does nothing.
func (r *Revocation) Inert() bool {
	return r.closer == nil
}

// Revoked reports whether Revoke has completed.
func (r *Revocation) Revoked() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Revoke unloads the facet. Only the first call has an effect.
func (r *Revocation) Revoke() error {
	var err error
	r.once.Do(func() {
		defer close(r.done)
		if r.closer == nil {
			return
		}
		r.metrics.ObserveUnload(r.facetType)
		if cerr := r.closer.Close(); cerr != nil {
			err = oops.In("facet").
				With("plugin", r.plugin).
				With("facet_type", r.facetType).
				Wrapf(cerr, "unload facet %s", r.facetType)
		}
	})
	return err
}

// Close implements io.Closer by revoking the facet.
func (r *Revocation) Close() error {
	return r.Revoke()
}
