// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/hooks"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/plugin"
	"github.com/holomush/plugincore/pkg/errutil"
)

const greeterScript = `
greeted = 0

function on_load(id)
  host.log("debug", "loading " .. id)
end

function on_event(name, payload)
  greeted = greeted + 1
  return name .. ":" .. (payload.who or "nobody") .. ":" .. greeted
end
`

type host struct {
	mgr     *plugin.Manager
	objects *objectfactory.Factory
	root    string
}

func newHost(t *testing.T) *host {
	t.Helper()
	objects := objectfactory.New()
	loaders := facet.NewLoaderRegistry()
	require.NoError(t, hooks.NewLoader(nil).Register(loaders))

	root := t.TempDir()
	mgr := plugin.NewManager(root, plugin.WithObjects(objects), plugin.WithLoaders(loaders))
	require.NoError(t, mgr.RegisterReader(hooks.Reader()))
	return &host{mgr: mgr, objects: objects, root: root}
}

// addPlugin writes a plugin with a hooks facet and returns it parsed.
func (h *host) addPlugin(t *testing.T, name, facetYAML, script string) *plugin.Plugin {
	t.Helper()
	dir := filepath.Join(h.root, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	manifest := "name: " + name + "\nversion: 1.0.0\nfacets:\n  hooks:\n" + facetYAML
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0o600))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks.lua"), []byte(script), 0o600))
	}

	m, err := plugin.ParseManifest([]byte(manifest))
	require.NoError(t, err)
	return &plugin.Plugin{Manifest: m, Dir: dir}
}

func TestHooks_InstallFireUninstall(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	p := h.addPlugin(t, "greeter", "    entry: hooks.lua\n", greeterScript)

	require.NoError(t, h.mgr.Install(ctx, p))

	results, err := hooks.FireAll(ctx, h.objects, "greet", map[string]string{"who": "ana"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"greeter": "greet:ana:1"}, results)

	hook, ok, err := objectfactory.Get[*hooks.Hook](ctx, h.objects, objectfactory.Where(plugin.PropertyPluginID, "greeter"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "greeter", hook.PluginID())

	out, err := hook.Fire(ctx, "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, "greet:nobody:2", out, "state persists between calls")

	require.NoError(t, h.mgr.Uninstall(ctx, "greeter"))

	results, err = hooks.FireAll(ctx, h.objects, "greet", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = hook.Fire(ctx, "greet", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, hooks.ErrClosed)
	errutil.AssertErrorCode(t, err, hooks.CodeClosed)
}

func TestHooks_EventFilter(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	p := h.addPlugin(t, "picky", "    entry: hooks.lua\n    events: [greet]\n", greeterScript)
	require.NoError(t, h.mgr.Install(ctx, p))

	results, err := hooks.FireAll(ctx, h.objects, "farewell", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = hooks.FireAll(ctx, h.objects, "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, "greet:nobody:1", results["picky"])
}

func TestHooks_ScriptWithoutCallbacks(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	p := h.addPlugin(t, "quiet", "    entry: hooks.lua\n", "x = 1\n")
	require.NoError(t, h.mgr.Install(ctx, p))

	results, err := hooks.FireAll(ctx, h.objects, "greet", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	require.NoError(t, h.mgr.Uninstall(ctx, "quiet"))
}

func TestHooks_InstallFailures(t *testing.T) {
	tests := []struct {
		name     string
		facet    string
		script   string
		wantCode string
		wantIs   error
	}{
		{"syntax error", "    entry: hooks.lua\n", "function (", hooks.CodeScriptInvalid, facet.ErrLoaderInitFailed},
		{"on_load raises", "    entry: hooks.lua\n", "function on_load(id) error('boom') end", hooks.CodeCallFailed, facet.ErrLoaderInitFailed},
		{"missing entry file", "    entry: missing.lua\n", "", hooks.CodeScriptInvalid, facet.ErrLoaderInitFailed},
		{"missing entry field", "    events: [greet]\n", "", hooks.CodeScriptInvalid, plugin.ErrFacetReadFailed},
		{"sandbox escape", "    entry: hooks.lua\n", "os.exit(1)", hooks.CodeScriptInvalid, facet.ErrLoaderInitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHost(t)
			p := h.addPlugin(t, "broken", tt.facet, tt.script)

			err := h.mgr.Install(ctx, p)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			errutil.AssertErrorCode(t, err, tt.wantCode)

			assert.Empty(t, h.mgr.Plugins())
			all, err := h.objects.GetAll(ctx, hooks.HookType, objectfactory.Query{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestHooks_UnloadRunsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	p := h.addPlugin(t, "leaver", "    entry: hooks.lua\n", `
function on_unload(id)
  error("unload-marker " .. id)
end
`)

	loaders := facet.NewLoaderRegistry()
	require.NoError(t, hooks.NewLoader(nil).Register(loaders))
	_, err := h.objects.RegisterReference(objectfactory.Singleton(p, objectfactory.WithProperty(plugin.PropertyPluginID, p.ID())))
	require.NoError(t, err)

	rev, err := loaders.Load(ctx, p, facet.New(hooks.Script{Entry: "hooks.lua"}, facet.Active), h.objects)
	require.NoError(t, err)

	err = rev.Revoke()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unload-marker leaver")
	assert.NoError(t, rev.Revoke())

	all, err := h.objects.GetAll(ctx, hooks.HookType, objectfactory.Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHooks_Load_UnknownPlugin(t *testing.T) {
	loaders := facet.NewLoaderRegistry()
	require.NoError(t, hooks.NewLoader(nil).Register(loaders))

	_, err := loaders.Load(context.Background(), facet.PluginID("ghost"),
		facet.New(hooks.Script{Entry: "hooks.lua"}, facet.Active), objectfactory.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, facet.ErrLoaderInitFailed)
	errutil.AssertErrorCode(t, err, hooks.CodeUnknownPlugin)
}

func TestHooks_WithoutLoaderActiveFacetFails(t *testing.T) {
	root := t.TempDir()
	mgr := plugin.NewManager(root)
	require.NoError(t, mgr.RegisterReader(hooks.Reader()))

	m, err := plugin.ParseManifest([]byte("name: lonely\nversion: 1.0.0\nfacets:\n  hooks:\n    entry: hooks.lua\n"))
	require.NoError(t, err)

	err = mgr.Install(context.Background(), &plugin.Plugin{Manifest: m, Dir: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, facet.ErrNoLoaderFound)
}

func TestHook_ConcurrentFire(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	h := newHost(t)
	p := h.addPlugin(t, "busy", "    entry: hooks.lua\n", greeterScript)
	require.NoError(t, h.mgr.Install(ctx, p))

	hook, ok, err := objectfactory.Get[*hooks.Hook](ctx, h.objects, objectfactory.Query{})
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = hook.Fire(ctx, "tick", nil)
		}()
	}
	wg.Wait()

	out, err := hook.Fire(ctx, "tick", nil)
	require.NoError(t, err)
	assert.Equal(t, "tick:nobody:9", out)

	require.NoError(t, h.mgr.Close(ctx))
}

func TestFireAll_CollectsResultsAndFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	h := newHost(t)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, h.mgr.Install(ctx, h.addPlugin(t, name, "    entry: hooks.lua\n", greeterScript)))
	}
	require.NoError(t, h.mgr.Install(ctx, h.addPlugin(t, "faulty", "    entry: hooks.lua\n",
		"function on_event(name, payload) error('bad event ' .. name) end\n")))

	for _, limit := range []int{0, 1, 4} {
		results, err := hooks.FireAllLimit(ctx, h.objects, "ping", map[string]string{"who": "x"}, limit)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad event ping")
		assert.Len(t, results, 3)
		assert.Contains(t, results["a"], "ping:x:")
	}

	require.NoError(t, h.mgr.Close(ctx))
}
