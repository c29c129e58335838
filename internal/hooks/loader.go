// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/plugin"
	"github.com/holomush/plugincore/internal/typeref"
)

// Compile-time interface check.
var _ facet.Loader = (*Loader)(nil)

// Loader loads Script facets.
type Loader struct {
	factory *StateFactory
}

// NewLoader creates a hooks loader that builds states with factory. A nil
// factory uses the default sandbox.
func NewLoader(factory *StateFactory) *Loader {
	if factory == nil {
		factory = NewStateFactory()
	}
	return &Loader{factory: factory}
}

// Register registers the loader for Script facets in r.
func (l *Loader) Register(r *facet.LoaderRegistry) error {
	return r.Register(typeref.Of[Script](), l)
}

// Load implements facet.Loader.
func (l *Loader) Load(ctx context.Context, p facet.Plugin, f facet.Facet, objects objectfactory.Registrar) (io.Closer, error) {
	script, ok := facet.As[Script](f)
	if !ok {
		return nil, oops.Code(CodeScriptInvalid).In("hooks").With("plugin", p.ID()).Errorf("facet does not carry a hooks script")
	}

	owner, ok, err := objectfactory.Get[*plugin.Plugin](ctx, objects, objectfactory.Where(plugin.PropertyPluginID, p.ID()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oops.Code(CodeUnknownPlugin).In("hooks").With("plugin", p.ID()).Errorf("plugin %s is not registered", p.ID())
	}

	path := owner.Path(script.Entry)
	code, err := os.ReadFile(path) //nolint:gosec // path is confined to the plugin directory
	if err != nil {
		return nil, oops.Code(CodeScriptInvalid).In("hooks").With("plugin", p.ID()).With("path", path).Hint("failed to read entry file").Wrap(err)
	}

	state, err := l.factory.NewState(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	hook := &Hook{
		pluginID: p.ID(),
		events:   make(map[string]struct{}, len(script.Events)),
		state:    state,
	}
	for _, e := range script.Events {
		hook.events[e] = struct{}{}
	}

	state.SetContext(ctx)
	err = state.DoString(string(code))
	state.RemoveContext()
	if err != nil {
		state.Close()
		return nil, oops.Code(CodeScriptInvalid).In("hooks").With("plugin", p.ID()).With("entry", script.Entry).Hint("syntax error").Wrap(err)
	}

	hook.mu.Lock()
	err = hook.call(ctx, "on_load")
	hook.mu.Unlock()
	if err != nil {
		state.Close()
		return nil, err
	}

	reg, err := objects.RegisterReference(
		objectfactory.Singleton(hook, objectfactory.WithProperty(plugin.PropertyPluginID, p.ID())),
		HookType)
	if err != nil {
		return nil, errors.Join(err, hook.shutdown(ctx))
	}

	slog.DebugContext(ctx, "hook script loaded", "plugin", p.ID(), "entry", script.Entry)

	return facet.CloserFunc(func() error {
		revokeErr := reg.Revoke()
		// The load context is gone by the time a plugin is uninstalled.
		shutdownErr := hook.shutdown(context.Background())
		return errors.Join(revokeErr, shutdownErr)
	}), nil
}
