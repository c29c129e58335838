// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package typeref provides comparable type descriptors used as lookup keys by
// the facet store, the facet loader registry and the object factory.
//
// A Type wraps a reflect.Type and is safe to use as a map key. Its Name is the
// fully qualified "importpath.TypeName" form, which is the identifier facet
// loaders are registered under.
package typeref

import (
	"errors"
	"reflect"
	"strings"
)

// ErrUnnamedType is returned by Named for types without a declared name,
// such as anonymous structs or function literals.
var ErrUnnamedType = errors.New("type has no declared name")

// Type describes a Go type. The zero value describes no type.
type Type struct {
	rt reflect.Type
}

// Of returns the descriptor for T. T may be an interface type.
func Of[T any]() Type {
	return Type{rt: reflect.TypeFor[T]()}
}

// OfValue returns the descriptor for the dynamic type of v.
// A nil interface value yields the zero Type.
func OfValue(v any) Type {
	if v == nil {
		return Type{}
	}
	return Type{rt: reflect.TypeOf(v)}
}

// FromReflect wraps an existing reflect.Type.
func FromReflect(rt reflect.Type) Type {
	return Type{rt: rt}
}

// IsZero reports whether t describes no type.
func (t Type) IsZero() bool {
	return t.rt == nil
}

// Reflect returns the underlying reflect.Type, or nil for the zero Type.
func (t Type) Reflect() reflect.Type {
	return t.rt
}

// Name returns the fully qualified name of the type: "importpath.Name" for
// named types, with a "*" prefix per pointer level. Builtin types return their
// plain name and unnamed composite types their reflect string.
func (t Type) Name() string {
	if t.rt == nil {
		return ""
	}
	return qualifiedName(t.rt)
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.rt == nil {
		return "<nil>"
	}
	return t.rt.String()
}

// Implements reports whether v may be stored or published under t.
// A nil v is accepted only for types that admit nil.
func (t Type) Implements(v any) bool {
	if t.rt == nil {
		return false
	}
	if v == nil {
		return nillable(t.rt.Kind())
	}
	return reflect.TypeOf(v).AssignableTo(t.rt)
}

// AssignableTo reports whether every value of t may be published under u.
func (t Type) AssignableTo(u Type) bool {
	if t.rt == nil || u.rt == nil {
		return false
	}
	return t.rt.AssignableTo(u.rt)
}

// IsInterface reports whether t describes an interface type.
func (t Type) IsInterface() bool {
	return t.rt != nil && t.rt.Kind() == reflect.Interface
}

// Named returns ErrUnnamedType unless t, after stripping pointers, has a
// declared name.
func Named(t Type) error {
	if t.rt == nil {
		return ErrUnnamedType
	}
	rt := t.rt
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return ErrUnnamedType
	}
	return nil
}

func qualifiedName(rt reflect.Type) string {
	var prefix strings.Builder
	for rt.Kind() == reflect.Pointer && rt.Name() == "" {
		prefix.WriteByte('*')
		rt = rt.Elem()
	}
	switch {
	case rt.Name() == "":
		return prefix.String() + rt.String()
	case rt.PkgPath() == "":
		return prefix.String() + rt.Name()
	default:
		return prefix.String() + rt.PkgPath() + "." + rt.Name()
	}
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
