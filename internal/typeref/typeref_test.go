// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package typeref_test

import (
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugincore/internal/typeref"
)

type settings struct {
	Timeout int
}

type greeter interface {
	Greet() string
}

type english struct{}

func (english) Greet() string { return "hello" }

func TestOf_Name(t *testing.T) {
	tests := []struct {
		name string
		typ  typeref.Type
		want string
	}{
		{"named struct", typeref.Of[settings](), "github.com/holomush/plugincore/internal/typeref_test.settings"},
		{"pointer to named struct", typeref.Of[*settings](), "*github.com/holomush/plugincore/internal/typeref_test.settings"},
		{"interface", typeref.Of[io.Closer](), "io.Closer"},
		{"builtin", typeref.Of[int](), "int"},
		{"unnamed slice", typeref.Of[[]string](), "[]string"},
		{"zero", typeref.Type{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Name())
		})
	}
}

func TestOf_ComparableAsMapKey(t *testing.T) {
	m := map[typeref.Type]string{
		typeref.Of[settings]():  "value",
		typeref.Of[*settings](): "pointer",
	}

	assert.Equal(t, "value", m[typeref.Of[settings]()])
	assert.Equal(t, "pointer", m[typeref.Of[*settings]()])
	assert.Equal(t, typeref.Of[settings](), typeref.OfValue(settings{}))
	assert.Equal(t, typeref.Of[settings](), typeref.FromReflect(reflect.TypeOf(settings{})))
}

func TestOfValue_Nil(t *testing.T) {
	assert.True(t, typeref.OfValue(nil).IsZero())
	assert.Equal(t, "<nil>", typeref.OfValue(nil).String())
}

func TestType_Implements(t *testing.T) {
	tests := []struct {
		name  string
		typ   typeref.Type
		value any
		want  bool
	}{
		{"exact struct", typeref.Of[settings](), settings{Timeout: 30}, true},
		{"pointer against value type", typeref.Of[settings](), &settings{}, false},
		{"concrete satisfies interface", typeref.Of[greeter](), english{}, true},
		{"wrong concrete for interface", typeref.Of[greeter](), settings{}, false},
		{"nil for interface", typeref.Of[greeter](), nil, true},
		{"nil for pointer", typeref.Of[*settings](), nil, true},
		{"nil for struct", typeref.Of[settings](), nil, false},
		{"zero type", typeref.Type{}, settings{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Implements(tt.value))
		})
	}
}

func TestNamed(t *testing.T) {
	require.NoError(t, typeref.Named(typeref.Of[settings]()))
	require.NoError(t, typeref.Named(typeref.Of[*settings]()))
	require.NoError(t, typeref.Named(typeref.Of[greeter]()))

	assert.ErrorIs(t, typeref.Named(typeref.Of[struct{ A int }]()), typeref.ErrUnnamedType)
	assert.ErrorIs(t, typeref.Named(typeref.Type{}), typeref.ErrUnnamedType)
}

func TestType_AssignableTo(t *testing.T) {
	assert.True(t, typeref.Of[english]().AssignableTo(typeref.Of[greeter]()))
	assert.True(t, typeref.Of[english]().AssignableTo(typeref.Of[english]()))
	assert.False(t, typeref.Of[settings]().AssignableTo(typeref.Of[greeter]()))
	assert.False(t, typeref.Type{}.AssignableTo(typeref.Of[greeter]()))
}

func TestType_IsInterface(t *testing.T) {
	assert.True(t, typeref.Of[greeter]().IsInterface())
	assert.False(t, typeref.Of[english]().IsInterface())
	assert.False(t, typeref.Type{}.IsInterface())
}

func ExampleType_Name() {
	fmt.Println(typeref.Of[io.Reader]().Name())
	// Output: io.Reader
}
