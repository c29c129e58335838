// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hooks implements the Lua hooks facet: plugins ship a Lua script
// whose callbacks the host invokes while the plugin is installed.
//
// A plugin declares the facet in its manifest:
//
//	facets:
//	  hooks:
//	    entry: hooks.lua
//
// Loading the facet runs the script in a sandboxed state, calls
// on_load(plugin_id), and publishes a *Hook in the object factory under the
// plugin-id property. Revoking it calls on_unload(plugin_id), withdraws the
// Hook and closes the state.
package hooks

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/plugin"
	"github.com/holomush/plugincore/internal/typeref"
)

// Error codes attached to oops errors raised by this package.
const (
	CodeStateFailed   = "HOOKS_STATE_FAILED"
	CodeScriptInvalid = "HOOKS_SCRIPT_INVALID"
	CodeCallFailed    = "HOOKS_CALL_FAILED"
	CodeUnknownPlugin = "HOOKS_UNKNOWN_PLUGIN"
	CodeClosed        = "HOOKS_CLOSED"
)

// ErrClosed indicates a hook whose facet was revoked.
var ErrClosed = errors.New("hook is closed")

// Key is the manifest facet key of the hooks facet.
const Key = "hooks"

// Script is the hooks facet data.
type Script struct {
	// Entry is the Lua file, relative to the plugin directory.
	Entry string `yaml:"entry"`
	// Events optionally limits which events reach on_event. Empty means all.
	Events []string `yaml:"events,omitempty"`
}

// HookType is the type hooks are published under.
var HookType = typeref.Of[*Hook]()

// scriptReader decodes and validates the hooks facet.
type scriptReader struct {
	*plugin.YAMLReader[Script]
}

// Reader returns the facet reader for Script. The facet is active: without
// the hooks loader registered, installing a plugin that declares it fails.
func Reader() plugin.FacetReader {
	return scriptReader{plugin.NewYAMLReader[Script](Key, facet.Active)}
}

// Read implements plugin.FacetReader.
func (r scriptReader) Read(m *plugin.Manifest) (any, error) {
	v, err := r.YAMLReader.Read(m)
	if err != nil || v == nil {
		return v, err
	}
	script, _ := v.(Script)
	if script.Entry == "" {
		return nil, oops.Code(CodeScriptInvalid).In("hooks").With("plugin", m.Name).Errorf("hooks.entry is required")
	}
	return script, nil
}

// Hook is a loaded hook script. It is safe for concurrent use; calls into
// the script are serialized.
type Hook struct {
	pluginID string
	events   map[string]struct{}

	mu     sync.Mutex
	state  *lua.LState
	closed bool
}

// PluginID returns the plugin the hook belongs to.
func (h *Hook) PluginID() string {
	return h.pluginID
}

// Wants reports whether event reaches the hook's on_event callback.
func (h *Hook) Wants(event string) bool {
	if len(h.events) == 0 {
		return true
	}
	_, ok := h.events[event]
	return ok
}

// Fire calls on_event(event, payload) in the hook script and returns the
// string it returns, if any. Scripts without on_event, and events the hook
// does not want, return "" without error.
func (h *Hook) Fire(ctx context.Context, event string, payload map[string]string) (string, error) {
	if !h.Wants(event) {
		return "", nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", oops.Code(CodeClosed).In("hooks").With("plugin", h.pluginID).Wrap(ErrClosed)
	}

	fn := h.state.GetGlobal("on_event")
	if fn.Type() == lua.LTNil {
		return "", nil
	}

	tbl := h.state.NewTable()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.state.SetField(tbl, k, lua.LString(payload[k]))
	}

	h.state.SetContext(ctx)
	defer h.state.RemoveContext()

	if err := h.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(event), tbl); err != nil {
		return "", oops.Code(CodeCallFailed).
			In("hooks").
			With("plugin", h.pluginID).
			With("callback", "on_event").
			With("event", event).
			Wrap(err)
	}
	ret := h.state.Get(-1)
	h.state.Pop(1)
	if ret.Type() == lua.LTNil {
		return "", nil
	}
	return ret.String(), nil
}

// call invokes an optional global callback with the plugin ID. Callers hold h.mu.
func (h *Hook) call(ctx context.Context, name string) error {
	fn := h.state.GetGlobal(name)
	if fn.Type() == lua.LTNil {
		return nil
	}

	h.state.SetContext(ctx)
	defer h.state.RemoveContext()

	if err := h.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LString(h.pluginID)); err != nil {
		return oops.Code(CodeCallFailed).
			In("hooks").
			With("plugin", h.pluginID).
			With("callback", name).
			Wrap(err)
	}
	return nil
}

// shutdown calls on_unload and closes the state. Later calls do nothing.
func (h *Hook) shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	err := h.call(ctx, "on_unload")
	h.state.Close()
	return err
}

// FireAll fires event on every hook published in objects and returns the
// non-empty results keyed by plugin ID. Hooks run concurrently, at most
// limit at a time (limit <= 0 means no bound). A failing hook does not stop
// the others; the failures are returned joined.
func FireAll(ctx context.Context, objects objectfactory.Registrar, event string, payload map[string]string) (map[string]string, error) {
	return FireAllLimit(ctx, objects, event, payload, runtime.GOMAXPROCS(0))
}

// FireAllLimit is FireAll with an explicit concurrency limit.
func FireAllLimit(ctx context.Context, objects objectfactory.Registrar, event string, payload map[string]string, limit int) (map[string]string, error) {
	hooks, err := objectfactory.GetAll[*Hook](ctx, objects, objectfactory.Query{})
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]string)
		errs    []error
	)
	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for _, h := range hooks {
		eg.Go(func() error {
			out, err := h.Fire(ctx, event, payload)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case out != "":
				results[h.PluginID()] = out
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results, errors.Join(errs...)
}
