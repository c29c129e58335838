// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/holomush/plugincore/internal/config"
	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/hooks"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/observability"
	"github.com/holomush/plugincore/internal/plugin"
)

// host wires the plugin manager to its facet and object registries.
type host struct {
	objects *objectfactory.Factory
	loaders *facet.LoaderRegistry
	manager *plugin.Manager
}

// newHost builds a host from cfg. Every registry reports to metrics.
func newHost(cfg *config.Config, metrics *observability.Metrics) (*host, error) {
	objects := objectfactory.New(objectfactory.WithMetrics(metrics))
	loaders := facet.NewLoaderRegistry(append(cfg.LoaderOptions(), facet.WithMetrics(metrics))...)

	states := hooks.NewStateFactory(hooks.WithCallStackSize(cfg.Lua.CallStackSize))
	if err := hooks.NewLoader(states).Register(loaders); err != nil {
		return nil, err
	}

	manager := plugin.NewManager(cfg.PluginsDir,
		plugin.WithObjects(objects),
		plugin.WithLoaders(loaders),
		plugin.WithHostVersion(cfg.HostSemver()),
		plugin.WithMetrics(metrics),
	)
	for _, r := range []plugin.FacetReader{plugin.InfoReader(), hooks.Reader()} {
		if err := manager.RegisterReader(r); err != nil {
			return nil, err
		}
	}

	return &host{objects: objects, loaders: loaders, manager: manager}, nil
}
