// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plugincore/internal/objectfactory"
	"github.com/holomush/plugincore/internal/typeref"
)

var _ = Describe("Aggregate object factory", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("priority chain of backing registries", func() {
		var (
			f       *objectfactory.Factory
			r2      *objectfactory.StaticRegistry
			s       *robot
			tGreets typeref.Type
		)

		BeforeEach(func() {
			var err error
			s = &robot{name: "S"}
			tGreets = greeterType

			r2, err = objectfactory.NewStaticRegistry("r2", objectfactory.StaticEntry{
				Ref:   objectfactory.Singleton(s),
				Types: []typeref.Type{tGreets},
			})
			Expect(err).NotTo(HaveOccurred())

			// The default runtime registry is R1: earlier in the chain and empty.
			f = objectfactory.New(objectfactory.WithBacking(r2))
			Expect(f.Backings()).To(Equal([]string{objectfactory.DefaultRuntimeName, "r2"}))
		})

		It("falls through an empty registry to a later one", func() {
			got, ok, err := f.Get(ctx, tGreets, objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(s))
		})

		It("prefers a new registration landing in the earlier registry", func() {
			s2 := &robot{name: "S2"}
			reg, err := f.RegisterObject(s2, tGreets)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.Backing()).To(Equal(objectfactory.DefaultRuntimeName))

			got, ok, err := f.Get(ctx, tGreets, objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(s2))

			all, err := f.GetAll(ctx, tGreets, objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0]).To(BeIdenticalTo(s2))
			Expect(all[1]).To(BeIdenticalTo(s))
		})

		It("falls back again once the registration is revoked", func() {
			reg, err := f.RegisterObject(&robot{name: "S2"}, tGreets)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.Revoke()).To(Succeed())

			got, ok, err := f.Get(ctx, tGreets, objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(s))
		})
	})

	Describe("factory reset", func() {
		It("accepts registrations again after Clear", func() {
			f := objectfactory.New()
			_, err := f.RegisterObject(&robot{name: "old"})
			Expect(err).NotTo(HaveOccurred())

			f.Clear()

			x := &robot{name: "x"}
			_, err = f.RegisterObject(x)
			Expect(err).NotTo(HaveOccurred())

			got, ok, err := f.Get(ctx, typeref.OfValue(x), objectfactory.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(x))
		})
	})

	Describe("multi-type registration", func() {
		It("publishes and revokes every type together", func() {
			f := objectfactory.New()
			r := &robot{name: "both"}

			reg, err := f.RegisterObject(r, greeterType, namerType)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.Types()).To(ConsistOf(greeterType, namerType))

			for _, typ := range []typeref.Type{greeterType, namerType} {
				got, ok, err := f.Get(ctx, typ, objectfactory.Query{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(got).To(BeIdenticalTo(r))
			}

			Expect(reg.Close()).To(Succeed())

			for _, typ := range []typeref.Type{greeterType, namerType} {
				_, ok, err := f.Get(ctx, typ, objectfactory.Query{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			}
		})
	})
})
