// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import "errors"

// Error codes attached to oops errors raised by this package.
const (
	CodeManifestInvalid  = "PLUGIN_MANIFEST_INVALID"
	CodeFacetReadFailed  = "PLUGIN_FACET_READ_FAILED"
	CodeNotFound         = "PLUGIN_NOT_FOUND"
	CodeAlreadyInstalled = "PLUGIN_ALREADY_INSTALLED"
	CodeIncompatibleHost = "PLUGIN_INCOMPATIBLE_HOST"
	CodeReaderConflict   = "PLUGIN_READER_CONFLICT"
	CodeDiscoveryFailed  = "PLUGIN_DISCOVERY_FAILED"
	CodeSchemaInvalid    = "PLUGIN_SCHEMA_INVALID"
)

var (
	// ErrInvalidManifest indicates a plugin.yaml that fails parsing or validation.
	ErrInvalidManifest = errors.New("invalid plugin manifest")

	// ErrFacetReadFailed indicates a facet reader failed or produced no value.
	ErrFacetReadFailed = errors.New("facet read failed")

	// ErrNotFound indicates the plugin is not installed.
	ErrNotFound = errors.New("plugin not installed")

	// ErrAlreadyInstalled indicates a plugin with the same ID is installed.
	ErrAlreadyInstalled = errors.New("plugin already installed")

	// ErrIncompatibleHost indicates the host version does not satisfy the
	// plugin's host-version constraint.
	ErrIncompatibleHost = errors.New("plugin requires a different host version")
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
