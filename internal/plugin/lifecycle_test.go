// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plugincore/internal/facet"
	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/plugin"
	"github.com/holomush/plugincore/internal/typeref"
)

var _ = Describe("Plugin lifecycle", func() {
	var (
		ctx     context.Context
		root    string
		objects *objectfactory.Factory
		loaders *facet.LoaderRegistry
		probes  *probeLoader
		mgr     *plugin.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		objects = objectfactory.New()
		probes = &probeLoader{}
		loaders = facet.NewLoaderRegistry()
		Expect(loaders.Register(typeref.Of[Probe](), probes)).To(Succeed())

		mgr = plugin.NewManager(root, plugin.WithObjects(objects), plugin.WithLoaders(loaders))
		Expect(mgr.RegisterReader(plugin.NewYAMLReader[Limits]("limits", facet.Passive))).To(Succeed())
		Expect(mgr.RegisterReader(plugin.NewYAMLReader[Probe]("probe", facet.Active))).To(Succeed())
		Expect(mgr.RegisterReader(plugin.InfoReader())).To(Succeed())
	})

	Context("when a plugin directory holds a complete manifest", func() {
		BeforeEach(func() {
			writePlugin(GinkgoT(), root, "alpha", fullManifest+"  info:\n    tags: [demo]\n")
			Expect(mgr.LoadAll(ctx)).To(Succeed())
		})

		It("installs the plugin and loads its active facet", func() {
			Expect(mgr.Plugins()).To(ConsistOf("alpha"))
			Expect(probes.loaded).To(Equal([]string{"alpha"}))
		})

		It("keeps passive facets readable without a loader", func() {
			info, ok, err := plugin.FacetOf[plugin.Info](mgr, "alpha")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(info.Tags).To(ConsistOf("demo"))
		})

		It("publishes the plugin object scoped by plugin-id", func() {
			q := objectfactory.Where(plugin.PropertyPluginID, "al*")
			owners, err := objectfactory.GetAll[*plugin.Plugin](ctx, objects, q)
			Expect(err).NotTo(HaveOccurred())
			Expect(owners).To(HaveLen(1))
			Expect(owners[0].Dir).To(Equal(filepath.Join(root, "alpha")))
		})

		It("undoes everything on uninstall", func() {
			p, ok := mgr.Plugin("alpha")
			Expect(ok).To(BeTrue())

			Expect(mgr.Uninstall(ctx, "alpha")).To(Succeed())
			Expect(probes.unloaded).To(Equal([]string{"alpha"}))
			Expect(mgr.Store().Types(p)).To(BeEmpty())

			all, err := objects.GetAll(ctx, typeref.Of[*plugin.Plugin](), objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("survives a factory reset with stale registrations", func() {
			objects.Clear()
			Expect(mgr.Uninstall(ctx, "alpha")).To(Succeed())
			Expect(probes.unloaded).To(Equal([]string{"alpha"}))
		})
	})
})
