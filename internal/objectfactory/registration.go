// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory

import (
	"context"
	"slices"
	"sync"

	"github.com/holomush/plugincore/internal/typeref"
)

// Registration owns exactly one entry in one backing registry. Revoking it
// removes the entry for every type it was published under.
//
// Revoke is idempotent and safe for concurrent use.
type Registration struct {
	id         string
	backing    BackingRegistry
	types      []typeref.Type
	unregister func(BackingRegistry, string)
	once       sync.Once
}

func newRegistration(id string, backing BackingRegistry, types []typeref.Type, unregister func(BackingRegistry, string)) *Registration {
	return &Registration{
		id:         id,
		backing:    backing,
		types:      types,
		unregister: unregister,
	}
}

// ID returns the entry id assigned by the backing registry.
func (r *Registration) ID() string {
	return r.id
}

// Backing returns the name of the backing registry holding the entry.
func (r *Registration) Backing() string {
	return r.backing.Name()
}

// Types returns the types the entry is published under.
func (r *Registration) Types() []typeref.Type {
	return slices.Clone(r.types)
}

// Revoke removes the registration. Calls after the first do nothing.
func (r *Registration) Revoke() error {
	r.once.Do(func() {
		r.unregister(r.backing, r.id)
	})
	return nil
}

// Close implements io.Closer by revoking the registration.
func (r *Registration) Close() error {
	return r.Revoke()
}

// Get returns the object of type T published by the first backing registry
// holding a match.
func Get[T any](ctx context.Context, r Registrar, q Query) (T, bool, error) {
	var zero T
	obj, ok, err := r.Get(ctx, typeref.Of[T](), q)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, false, nil
	}
	return typed, true, nil
}

// GetAll returns every object of type T across all backing registries.
func GetAll[T any](ctx context.Context, r Registrar, q Query) ([]T, error) {
	objs, err := r.GetAll(ctx, typeref.Of[T](), q)
	if err != nil {
		return nil, err
	}
	typed := make([]T, 0, len(objs))
	for _, obj := range objs {
		if v, ok := obj.(T); ok {
			typed = append(typed, v)
		}
	}
	return typed, nil
}
