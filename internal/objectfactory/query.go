// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// compiledProperty pairs a property key with its compiled value pattern.
type compiledProperty struct {
	key     string
	pattern string
	glob    glob.Glob
}

// Query filters lookups by reference properties.
//
// Property values are glob patterns with '.' as the segment separator, so
// "*" matches one segment and "**" any number of them. The zero Query
// matches every reference.
type Query struct {
	props []compiledProperty
}

// NewQuery compiles a property filter. Every key must be present on a
// reference, and its value must match the pattern, for the reference to match.
func NewQuery(props map[string]string) (Query, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	compiled := make([]compiledProperty, 0, len(keys))
	for _, k := range keys {
		g, err := glob.Compile(props[k], '.')
		if err != nil {
			return Query{}, oops.Code(CodeInvalidQuery).
				In("objectfactory").
				With("property", k).
				With("pattern", props[k]).
				Wrap(err)
		}
		compiled = append(compiled, compiledProperty{key: k, pattern: props[k], glob: g})
	}
	return Query{props: compiled}, nil
}

// MustQuery is NewQuery that panics on an invalid pattern.
func MustQuery(props map[string]string) Query {
	q, err := NewQuery(props)
	if err != nil {
		panic(err)
	}
	return q
}

// Where is shorthand for a single-property query.
func Where(key, pattern string) Query {
	return MustQuery(map[string]string{key: pattern})
}

// IsEmpty reports whether the query matches everything.
func (q Query) IsEmpty() bool {
	return len(q.props) == 0
}

// Matches reports whether props satisfy the query.
func (q Query) Matches(props map[string]string) bool {
	for _, p := range q.props {
		v, ok := props[p.key]
		if !ok || !p.glob.Match(v) {
			return false
		}
	}
	return true
}

// Properties returns the raw property patterns.
func (q Query) Properties() map[string]string {
	out := make(map[string]string, len(q.props))
	for _, p := range q.props {
		out[p.key] = p.pattern
	}
	return out
}
