// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory

import (
	"slices"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/plugincore/internal/typeref"
)

// BackingRegistry is one independently owned registry composed into a Factory.
//
// Implementations must be safe for concurrent use.
type BackingRegistry interface {
	// Name identifies the registry in logs and metrics.
	Name() string

	// Register stores ref under every type in types and returns the entry id.
	// Read-only registries return ErrRegistrationRefused.
	Register(ref Reference, types []typeref.Type) (string, error)

	// Unregister removes the entry with the given id from all of its types.
	// It reports whether an entry was removed.
	Unregister(id string) bool

	// Lookup returns the references published under t that match q, highest
	// priority first and in registration order among equal priorities.
	Lookup(t typeref.Type, q Query) []Reference

	// Clear removes every entry.
	Clear()

	// Len returns the number of entries.
	Len() int
}

// entry is one registration inside a backing registry.
type entry struct {
	id    string
	ref   Reference
	types []typeref.Type
	seq   uint64
}

// entryTable is the storage shared by the runtime and static registries.
// Callers hold the owning registry's lock.
type entryTable struct {
	byID   map[string]*entry
	byType map[typeref.Type][]*entry
	seq    uint64
}

func newEntryTable() entryTable {
	return entryTable{
		byID:   make(map[string]*entry),
		byType: make(map[typeref.Type][]*entry),
	}
}

func (t *entryTable) add(ref Reference, types []typeref.Type) string {
	t.seq++
	e := &entry{
		id:    ulid.Make().String(),
		ref:   ref,
		types: slices.Clone(types),
		seq:   t.seq,
	}
	t.byID[e.id] = e
	for _, typ := range e.types {
		t.byType[typ] = append(t.byType[typ], e)
	}
	return e.id
}

func (t *entryTable) remove(id string) bool {
	e, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	for _, typ := range e.types {
		remaining := slices.DeleteFunc(t.byType[typ], func(x *entry) bool { return x.id == id })
		if len(remaining) == 0 {
			delete(t.byType, typ)
			continue
		}
		t.byType[typ] = remaining
	}
	return true
}

func (t *entryTable) lookup(typ typeref.Type, q Query) []Reference {
	candidates := t.byType[typ]
	if len(candidates) == 0 {
		return nil
	}

	matched := make([]*entry, 0, len(candidates))
	for _, e := range candidates {
		if q.Matches(e.ref.Properties()) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		pi, pj := matched[i].ref.Priority(), matched[j].ref.Priority()
		if pi != pj {
			return pi > pj
		}
		return matched[i].seq < matched[j].seq
	})

	refs := make([]Reference, len(matched))
	for i, e := range matched {
		refs[i] = e.ref
	}
	return refs
}

// RuntimeRegistry is the writable backing registry for objects that arrive
// while the host is running. Every Factory owns one.
type RuntimeRegistry struct {
	name  string
	mu    sync.RWMutex
	table entryTable
}

// NewRuntimeRegistry creates an empty writable registry.
func NewRuntimeRegistry(name string) *RuntimeRegistry {
	return &RuntimeRegistry{name: name, table: newEntryTable()}
}

// Name implements BackingRegistry.
func (r *RuntimeRegistry) Name() string {
	return r.name
}

// Register implements BackingRegistry.
func (r *RuntimeRegistry) Register(ref Reference, types []typeref.Type) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.add(ref, types), nil
}

// Unregister implements BackingRegistry.
func (r *RuntimeRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.remove(id)
}

// Lookup implements BackingRegistry.
func (r *RuntimeRegistry) Lookup(t typeref.Type, q Query) []Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.lookup(t, q)
}

// Clear implements BackingRegistry.
func (r *RuntimeRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = newEntryTable()
}

// Len implements BackingRegistry.
func (r *RuntimeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table.byID)
}

// StaticEntry declares one object of a StaticRegistry.
type StaticEntry struct {
	Ref   Reference
	Types []typeref.Type
}

// StaticRegistry is a read-only backing registry populated at construction,
// typically with host-provided defaults.
type StaticRegistry struct {
	name  string
	mu    sync.RWMutex
	table entryTable
}

// NewStaticRegistry builds a read-only registry. Entries without types are
// published under their reference type.
func NewStaticRegistry(name string, entries ...StaticEntry) (*StaticRegistry, error) {
	r := &StaticRegistry{name: name, table: newEntryTable()}
	for _, e := range entries {
		types, err := publicationTypes(e.Ref, e.Types)
		if err != nil {
			return nil, err
		}
		r.table.add(e.Ref, types)
	}
	return r, nil
}

// Name implements BackingRegistry.
func (r *StaticRegistry) Name() string {
	return r.name
}

// Register always refuses.
func (r *StaticRegistry) Register(Reference, []typeref.Type) (string, error) {
	return "", ErrRegistrationRefused
}

// Unregister implements BackingRegistry. Static entries are only removed by Clear.
func (r *StaticRegistry) Unregister(string) bool {
	return false
}

// Lookup implements BackingRegistry.
func (r *StaticRegistry) Lookup(t typeref.Type, q Query) []Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.lookup(t, q)
}

// Clear implements BackingRegistry.
func (r *StaticRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = newEntryTable()
}

// Len implements BackingRegistry.
func (r *StaticRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table.byID)
}
