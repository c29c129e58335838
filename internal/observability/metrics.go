// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/plugin"
)

// Compile-time interface checks.
var (
	_ facet.Metrics         = (*Metrics)(nil)
	_ objectfactory.Metrics = (*Metrics)(nil)
	_ plugin.Metrics        = (*Metrics)(nil)
)

// Metrics contains the Prometheus metrics of the plugin host.
type Metrics struct {
	FacetLoadsTotal     *prometheus.CounterVec
	FacetUnloadsTotal   *prometheus.CounterVec
	ObjectRegistrations *prometheus.GaugeVec
	ObjectLookupsTotal  *prometheus.CounterVec
	PluginsInstalled    prometheus.Gauge
}

// NewMetrics creates and registers the plugin host metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FacetLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugincore_facet_loads_total",
				Help: "Total number of facet loads by facet type and result",
			},
			[]string{"facet_type", "result"},
		),
		FacetUnloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugincore_facet_unloads_total",
				Help: "Total number of facet revocations that ran a loader's closer",
			},
			[]string{"facet_type"},
		),
		ObjectRegistrations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plugincore_object_registrations",
				Help: "Current number of registrations per backing registry",
			},
			[]string{"backing"},
		),
		ObjectLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugincore_object_lookups_total",
				Help: "Total number of object factory lookups by result",
			},
			[]string{"result"},
		),
		PluginsInstalled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugincore_plugins_installed",
				Help: "Current number of installed plugins",
			},
		),
	}

	reg.MustRegister(
		m.FacetLoadsTotal,
		m.FacetUnloadsTotal,
		m.ObjectRegistrations,
		m.ObjectLookupsTotal,
		m.PluginsInstalled,
	)

	return m
}

// ObserveLoad implements facet.Metrics.
func (m *Metrics) ObserveLoad(facetType, result string) {
	m.FacetLoadsTotal.WithLabelValues(facetType, result).Inc()
}

// ObserveUnload implements facet.Metrics.
func (m *Metrics) ObserveUnload(facetType string) {
	m.FacetUnloadsTotal.WithLabelValues(facetType).Inc()
}

// SetRegistrations implements objectfactory.Metrics.
func (m *Metrics) SetRegistrations(backing string, n int) {
	m.ObjectRegistrations.WithLabelValues(backing).Set(float64(n))
}

// ObserveLookup implements objectfactory.Metrics.
func (m *Metrics) ObserveLookup(result string) {
	m.ObjectLookupsTotal.WithLabelValues(result).Inc()
}

// SetInstalled implements plugin.Metrics.
func (m *Metrics) SetInstalled(n int) {
	m.PluginsInstalled.Set(float64(n))
}
