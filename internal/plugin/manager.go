// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/typeref"
)

// PropertyPluginID is the object property that scopes a registration to a plugin.
const PropertyPluginID = "plugin-id"

// Plugin is a discovered plugin: its manifest and the directory holding it.
type Plugin struct {
	Manifest *Manifest
	Dir      string
}

// ID implements facet.Plugin.
func (p *Plugin) ID() string {
	return p.Manifest.Name
}

// Path resolves rel against the plugin directory.
func (p *Plugin) Path(rel string) string {
	return filepath.Join(p.Dir, filepath.Clean("/"+rel))
}

// Metrics receives plugin lifecycle events.
type Metrics interface {
	SetInstalled(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetInstalled(int) {}

// installation tracks what Install did for one plugin so Uninstall can undo it.
type installation struct {
	plugin       *Plugin
	registration *objectfactory.Registration
	revocations  []*facet.Revocation
}

// Manager discovers plugins and installs their facets.
//
// Installing a plugin reads every manifest facet with a registered reader,
// caches the values in the facet store, and loads each one through the loader
// registry. Uninstalling revokes the loads in reverse order and drops the
// cached values.
type Manager struct {
	pluginsDir  string
	store       *facet.Store
	loaders     *facet.LoaderRegistry
	objects     objectfactory.Registrar
	hostVersion *semver.Version
	metrics     Metrics

	mu        sync.RWMutex
	readers   map[string]FacetReader // manifest key -> reader
	byType    map[string]FacetReader // facet type name -> reader
	installed map[string]*installation
	order     []string
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithStore sets the facet store. The default is a fresh store.
func WithStore(s *facet.Store) ManagerOption {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithLoaders sets the loader registry. The default is an empty registry.
func WithLoaders(r *facet.LoaderRegistry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.loaders = r
		}
	}
}

// WithObjects sets the object factory handed to loaders. The default is a
// fresh aggregate factory.
func WithObjects(r objectfactory.Registrar) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.objects = r
		}
	}
}

// WithHostVersion sets the host version checked against manifest
// host-version constraints. Without it no constraint is enforced.
func WithHostVersion(v *semver.Version) ManagerOption {
	return func(m *Manager) {
		m.hostVersion = v
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) ManagerOption {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// NewManager creates a plugin manager for pluginsDir.
func NewManager(pluginsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir: pluginsDir,
		readers:    make(map[string]FacetReader),
		byType:     make(map[string]FacetReader),
		installed:  make(map[string]*installation),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = facet.NewStore()
	}
	if m.loaders == nil {
		m.loaders = facet.NewLoaderRegistry()
	}
	if m.objects == nil {
		m.objects = objectfactory.New()
	}
	return m
}

// Store returns the facet store.
func (m *Manager) Store() *facet.Store {
	return m.store
}

// Loaders returns the loader registry.
func (m *Manager) Loaders() *facet.LoaderRegistry {
	return m.loaders
}

// RegisterReader registers r for its manifest key. Keys and facet types must
// be unique.
func (m *Manager) RegisterReader(r FacetReader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.readers[r.Key()]; exists {
		return oops.Code(CodeReaderConflict).In("plugin").With("facet", r.Key()).Errorf("facet reader for key %q already registered", r.Key())
	}
	typeName := r.Type().Name()
	if _, exists := m.byType[typeName]; exists {
		return oops.Code(CodeReaderConflict).In("plugin").With("facet_type", typeName).Errorf("facet reader for type %s already registered", typeName)
	}
	m.readers[r.Key()] = r
	m.byType[typeName] = r
	return nil
}

// Readers returns the registered manifest keys, sorted.
func (m *Manager) Readers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.readers))
	for k := range m.readers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Discover finds all valid plugins in the plugins directory.
// Invalid plugins are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*Plugin, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No plugins directory
		}
		return nil, oops.Code(CodeDiscoveryFailed).In("plugin").With("dir", m.pluginsDir).Wrapf(err, "read plugins directory")
	}

	var plugins []*Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFile)

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			slog.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		plugins = append(plugins, &Plugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	return plugins, nil
}

// LoadAll discovers and installs all plugins in the plugins directory.
// Individual install failures are logged and do not fail the whole load.
func (m *Manager) LoadAll(ctx context.Context) error {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	for _, p := range discovered {
		if err := m.Install(ctx, p); err != nil {
			slog.Error("failed to install plugin",
				"plugin", p.ID(),
				"error", err)
			continue
		}
	}

	return nil
}

// Install registers p in the object factory, reads its facets into the store
// and loads them. When any step fails, everything done so far is undone and
// the plugin is not installed.
func (m *Manager) Install(ctx context.Context, p *Plugin) error {
	if p == nil || p.Manifest == nil {
		return oops.Code(CodeManifestInvalid).In("plugin").Wrapf(ErrInvalidManifest, "plugin has no manifest")
	}
	id := p.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.installed[id]; exists {
		return oops.Code(CodeAlreadyInstalled).In("plugin").With("plugin", id).Wrap(ErrAlreadyInstalled)
	}

	ok, err := p.Manifest.SupportsHost(m.hostVersion)
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code(CodeIncompatibleHost).
			In("plugin").
			With("plugin", id).
			With("host_version", m.hostVersion.String()).
			With("constraint", p.Manifest.HostVersion).
			Wrap(ErrIncompatibleHost)
	}

	instances, err := m.readFacets(p)
	if err != nil {
		return err
	}

	inst := &installation{plugin: p}
	inst.registration, err = m.objects.RegisterReference(
		objectfactory.Singleton(p, objectfactory.WithProperty(PropertyPluginID, id)))
	if err != nil {
		return oops.In("plugin").With("plugin", id).Wrapf(err, "register plugin object")
	}

	for _, in := range instances {
		if err := m.store.Set(p, in.Type, in.Data); err != nil {
			return m.abort(inst, err)
		}
	}

	for _, in := range instances {
		rev, err := m.loaders.Load(ctx, p, in, m.objects)
		if err != nil {
			return m.abort(inst, err)
		}
		inst.revocations = append(inst.revocations, rev)
	}

	m.installed[id] = inst
	m.order = append(m.order, id)
	m.metrics.SetInstalled(len(m.installed))

	slog.Info("installed plugin",
		"plugin", id,
		"version", p.Manifest.Version,
		"facets", len(instances))

	return nil
}

// readFacets reads every manifest facet with a registered reader, in key
// order. Callers hold m.mu.
func (m *Manager) readFacets(p *Plugin) ([]facet.Instance, error) {
	keys := make([]string, 0, len(p.Manifest.Facets))
	for key := range p.Manifest.Facets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	instances := make([]facet.Instance, 0, len(keys))
	for _, key := range keys {
		reader, ok := m.readers[key]
		if !ok {
			slog.Warn("skipping facet without reader", "plugin", p.ID(), "facet", key)
			continue
		}
		data, err := readFacet(reader, p)
		if err != nil {
			return nil, err
		}
		instances = append(instances, facet.Instance{Type: reader.Type(), Data: data, Mode: reader.Activation()})
	}
	return instances, nil
}

func readFacet(reader FacetReader, p *Plugin) (any, error) {
	data, err := reader.Read(p.Manifest)
	if err != nil {
		if _, ok := oops.AsOops(err); ok && errors.Is(err, ErrFacetReadFailed) {
			return nil, err
		}
		return nil, oops.Code(CodeFacetReadFailed).
			In("plugin").
			With("plugin", p.ID()).
			With("facet", reader.Key()).
			Wrap(joinCause(ErrFacetReadFailed, err))
	}
	if data == nil {
		return nil, oops.Code(CodeFacetReadFailed).
			In("plugin").
			With("plugin", p.ID()).
			With("facet", reader.Key()).
			Wrapf(ErrFacetReadFailed, "reader returned no value")
	}
	return data, nil
}

// abort rolls back a failed installation and returns the failure.
func (m *Manager) abort(inst *installation, cause error) error {
	if err := m.rollback(inst); err != nil {
		slog.Warn("rollback after failed install incomplete",
			"plugin", inst.plugin.ID(),
			"error", err)
	}
	return cause
}

// rollback undoes a partial or complete installation. Revocation errors are
// returned joined.
func (m *Manager) rollback(inst *installation) error {
	var errs []error
	for i := len(inst.revocations) - 1; i >= 0; i-- {
		if err := inst.revocations[i].Revoke(); err != nil {
			errs = append(errs, err)
		}
	}
	m.store.RemovePlugin(inst.plugin)
	if inst.registration != nil {
		if err := inst.registration.Revoke(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Uninstall revokes every facet loaded for the plugin, in reverse load order,
// and drops its cached facets. The plugin is removed even when a revocation
// fails; the failures are returned.
func (m *Manager) Uninstall(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.uninstall(id)
}

// uninstall removes an installed plugin. Callers hold m.mu.
func (m *Manager) uninstall(id string) error {
	inst, ok := m.installed[id]
	if !ok {
		return oops.Code(CodeNotFound).In("plugin").With("plugin", id).Wrap(ErrNotFound)
	}
	delete(m.installed, id)
	m.order = removeID(m.order, id)
	m.metrics.SetInstalled(len(m.installed))

	if err := m.rollback(inst); err != nil {
		return oops.In("plugin").With("plugin", id).Wrapf(err, "uninstall plugin")
	}

	slog.Info("uninstalled plugin", "plugin", id)
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Plugins returns the IDs of installed plugins, sorted.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.installed))
	for id := range m.installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Plugin returns an installed plugin by ID.
func (m *Manager) Plugin(id string) (*Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.installed[id]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// Facet returns the facet of type t for an installed plugin, reading and
// caching it on first access. The boolean is false when the manifest does not
// declare the facet or no reader handles t.
func (m *Manager) Facet(id string, t typeref.Type) (any, bool, error) {
	m.mu.RLock()
	inst, ok := m.installed[id]
	reader, hasReader := m.byType[t.Name()]
	m.mu.RUnlock()

	if !ok {
		return nil, false, oops.Code(CodeNotFound).In("plugin").With("plugin", id).Wrap(ErrNotFound)
	}
	if v, ok := m.store.Get(inst.plugin, t); ok {
		return v, true, nil
	}
	if !hasReader || !inst.plugin.Manifest.HasFacet(reader.Key()) {
		return nil, false, nil
	}

	data, err := readFacet(reader, inst.plugin)
	if err != nil {
		return nil, false, err
	}

	// The read ran unlocked; only cache it if the same installation is still live.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.installed[id] != inst {
		return nil, false, oops.Code(CodeNotFound).In("plugin").With("plugin", id).Wrap(ErrNotFound)
	}
	if err := m.store.Set(inst.plugin, t, data); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// FacetOf returns the facet of type T for an installed plugin.
func FacetOf[T any](m *Manager, id string) (T, bool, error) {
	var zero T
	v, ok, err := m.Facet(id, typeref.Of[T]())
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, ok := v.(T)
	return typed, ok, nil
}

// Close uninstalls all plugins in reverse install order.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		if err := m.uninstall(m.order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oops.In("plugin").Wrapf(errors.Join(errs...), "close plugin manager")
	}
	return nil
}
