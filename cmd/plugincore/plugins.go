// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugincore/internal/config"
	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/observability"
)

// PluginStatus describes one discovered plugin.
type PluginStatus struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Facets  []string `json:"facets"`
	// Loaded lists the facet types the store holds once installed.
	Loaded []string `json:"loaded,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List discovered plugins and their facets",
		Long: `Discover plugins, install each one to check that its facets read and
load, then uninstall them all again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			statuses, err := inspectPlugins(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				out, err := json.MarshalIndent(statuses, "", "  ")
				if err != nil {
					return oops.Wrapf(err, "format JSON")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), formatPluginTable(statuses))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// inspectPlugins installs every discovered plugin and reports what loaded.
func inspectPlugins(ctx context.Context, cfg *config.Config) ([]PluginStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := newHost(cfg, observability.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		return nil, err
	}
	discovered, err := h.manager.Discover(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]PluginStatus, 0, len(discovered))
	for _, p := range discovered {
		st := PluginStatus{Name: p.Manifest.Name, Version: p.Manifest.Version}
		for key := range p.Manifest.Facets {
			st.Facets = append(st.Facets, key)
		}
		sort.Strings(st.Facets)

		if err := h.manager.Install(ctx, p); err != nil {
			st.Error = err.Error()
		} else {
			for _, t := range h.manager.Store().Types(facet.PluginID(p.ID())) {
				st.Loaded = append(st.Loaded, t.Name())
			}
		}
		statuses = append(statuses, st)
	}

	if err := h.manager.Close(ctx); err != nil {
		return nil, err
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

func formatPluginTable(statuses []PluginStatus) string {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"NAME", "VERSION", "FACETS", "STATUS"})
	for _, st := range statuses {
		status := "ok"
		if st.Error != "" {
			status = "error: " + st.Error
		}
		t.AppendRow(table.Row{st.Name, st.Version, strings.Join(st.Facets, ","), status})
	}
	t.Render()
	return buf.String()
}
