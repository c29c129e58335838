// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facet

import (
	"reflect"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plugincore/internal/typeref"
)

// Store holds facet values per plugin and facet type.
//
// Store is safe for concurrent use. The zero value is ready to use. The store
// indexes plugins by ID and never owns them; hosts call RemovePlugin when a
// plugin is uninstalled.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[typeref.Type]any // plugin ID -> facet type -> value
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]map[typeref.Type]any)}
}

// Get returns the value last set for (p, t). The boolean is false when no
// value is present; an unknown or nil plugin is not an error.
func (s *Store) Get(p Plugin, t typeref.Type) (any, bool) {
	id, ok := pluginID(p)
	if !ok {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	facets, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	v, ok := facets[t]
	return v, ok
}

// Set stores v under (p, t), replacing any previous value. v must be
// assignable to t; nil is accepted for types that admit nil.
func (s *Store) Set(p Plugin, t typeref.Type, v any) error {
	id, ok := pluginID(p)
	if !ok {
		return oops.Code(CodeInvalidPlugin).In("facet").With("facet_type", t.Name()).Wrap(ErrNilPlugin)
	}
	if t.IsZero() {
		return oops.Code(CodeInvalidFacetType).In("facet").With("plugin", id).Errorf("facet type cannot be empty")
	}
	if !t.Implements(v) {
		return oops.Code(CodeValueTypeMismatch).
			In("facet").
			With("plugin", id).
			With("facet_type", t.Name()).
			With("value_type", typeref.OfValue(v).Name()).
			Wrap(ErrValueTypeMismatch)
	}
	s.set(id, t, v)
	return nil
}

func (s *Store) set(id string, t typeref.Type, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[string]map[typeref.Type]any)
	}
	facets, ok := s.entries[id]
	if !ok {
		facets = make(map[typeref.Type]any)
		s.entries[id] = facets
	}
	facets[t] = v
}

// Clear removes the value for (p, t). Clearing an absent value does nothing.
func (s *Store) Clear(p Plugin, t typeref.Type) {
	id, ok := pluginID(p)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	facets, ok := s.entries[id]
	if !ok {
		return
	}
	delete(facets, t)
	if len(facets) == 0 {
		delete(s.entries, id)
	}
}

// Contains reports whether a value is present for (p, t).
func (s *Store) Contains(p Plugin, t typeref.Type) bool {
	id, ok := pluginID(p)
	if !ok {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok = s.entries[id][t]
	return ok
}

// RemovePlugin drops every facet value of p and returns how many were removed.
func (s *Store) RemovePlugin(p Plugin) int {
	id, ok := pluginID(p)
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[id])
	delete(s.entries, id)
	return n
}

// Types returns the facet types stored for p, sorted by name.
func (s *Store) Types(p Plugin) []typeref.Type {
	id, ok := pluginID(p)
	if !ok {
		return []typeref.Type{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	facets := s.entries[id]
	types := make([]typeref.Type, 0, len(facets))
	for t := range facets {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name() < types[j].Name() })
	return types
}

// Plugins returns the IDs of plugins with at least one facet value, sorted.
func (s *Store) Plugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pluginID returns p's ID. It reports false for a nil plugin, including a
// nil pointer behind the interface.
func pluginID(p Plugin) (string, bool) {
	if isNil(p) {
		return "", false
	}
	return p.ID(), true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Get returns the facet of type T for p.
func Get[T any](s *Store, p Plugin) (T, bool) {
	var zero T
	v, ok := s.Get(p, typeref.Of[T]())
	if !ok {
		return zero, false
	}
	if v == nil {
		return zero, true
	}
	typed, ok := v.(T)
	return typed, ok
}

// Set stores the facet of type T for p. A nil plugin is ignored.
func Set[T any](s *Store, p Plugin, v T) {
	if id, ok := pluginID(p); ok {
		s.set(id, typeref.Of[T](), v)
	}
}

// Clear removes the facet of type T for p.
func Clear[T any](s *Store, p Plugin) {
	s.Clear(p, typeref.Of[T]())
}

// Contains reports whether p has a facet of type T.
func Contains[T any](s *Store, p Plugin) bool {
	return s.Contains(p, typeref.Of[T]())
}
