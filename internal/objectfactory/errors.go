// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package objectfactory

import "errors"

// Error codes attached to oops errors raised by this package.
const (
	CodeRegistrationRejected = "OBJECT_REGISTRATION_REJECTED"
	CodeTypeMismatch         = "OBJECT_TYPE_MISMATCH"
	CodeInvalidRegistration  = "OBJECT_INVALID_REGISTRATION"
	CodeResolveFailed        = "OBJECT_RESOLVE_FAILED"
	CodeInvalidQuery         = "OBJECT_INVALID_QUERY"
)

var (
	// ErrRegistrationRefused is returned by a BackingRegistry that does not
	// accept registrations. The aggregate factory moves on to the next one.
	ErrRegistrationRefused = errors.New("backing registry refuses registrations")

	// ErrRegistrationRejected indicates that every backing registry refused.
	ErrRegistrationRejected = errors.New("no backing registry accepted the registration")

	// ErrTypeMismatch indicates an object or reference cannot satisfy a
	// requested publication type.
	ErrTypeMismatch = errors.New("object does not satisfy published type")

	// ErrNilObject indicates a nil object or reference was registered.
	ErrNilObject = errors.New("object cannot be nil")
)
