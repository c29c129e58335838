// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package facet

import "errors"

// Error codes attached to oops errors raised by this package.
const (
	CodeNoLoaderFound     = "FACET_NO_LOADER"
	CodeLoaderInitFailed  = "FACET_LOADER_INIT_FAILED"
	CodeLoaderConflict    = "FACET_LOADER_CONFLICT"
	CodeValueTypeMismatch = "FACET_VALUE_TYPE_MISMATCH"
	CodeInvalidFacetType  = "FACET_INVALID_TYPE"
	CodeInvalidPlugin     = "FACET_INVALID_PLUGIN"
	CodeInvalidLoader     = "FACET_INVALID_LOADER"
	CodeInvalidPolicy     = "FACET_INVALID_POLICY"
)

var (
	// ErrNoLoaderFound indicates no loader is registered for a facet's data type.
	ErrNoLoaderFound = errors.New("no loader registered for facet type")

	// ErrLoaderInitFailed indicates a loader failed while loading a facet.
	ErrLoaderInitFailed = errors.New("facet loader failed")

	// ErrLoaderConflict indicates a second loader was registered for a type
	// under the reject policy.
	ErrLoaderConflict = errors.New("facet loader already registered")

	// ErrValueTypeMismatch indicates a value cannot be stored under a facet type.
	ErrValueTypeMismatch = errors.New("facet value does not match facet type")

	// ErrNilPlugin indicates a nil plugin was passed where one is required.
	ErrNilPlugin = errors.New("plugin is nil")

	// ErrNilFacet indicates a nil facet was passed to a loader.
	ErrNilFacet = errors.New("facet is nil")
)

// causeError matches both a package sentinel and the underlying cause under
// errors.Is while printing only the cause.
type causeError struct {
	sentinel error
	cause    error
}

func (e *causeError) Error() string {
	return e.cause.Error()
}

func (e *causeError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

func joinCause(sentinel, cause error) error {
	return &causeError{sentinel: sentinel, cause: cause}
}
