// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument marks a malformed key, metadata, SCN or identifier
	// passed to an entry point.
	ErrInvalidArgument = errors.New("directload: invalid argument")

	// ErrNotInitialized marks an operation on an object that has not been
	// initialized.
	ErrNotInitialized = errors.New("directload: not initialized")

	// ErrAlreadyInitialized marks a second initialization of an object.
	ErrAlreadyInitialized = errors.New("directload: already initialized")

	// ErrRetryable marks an operation that cannot complete yet. The caller is
	// expected to poll again, possibly against a different container.
	ErrRetryable = errors.New("directload: retry")

	// ErrStateMismatch marks an operation attempted in the wrong lifecycle
	// state.
	ErrStateMismatch = errors.New("directload: state mismatch")

	// ErrBeyondRange is returned by bound and range lookups that find no
	// qualifying entry. It is a control signal, not a failure.
	ErrBeyondRange = errors.New("directload: beyond range")

	// ErrEndOfIteration is returned when an iterator steps past its last
	// entry. It is a control signal, not a failure.
	ErrEndOfIteration = errors.New("directload: end of iteration")

	// ErrUnexpected marks a broken invariant. Such errors are defects.
	ErrUnexpected = errors.New("directload: unexpected")
)

// InvalidArgumentf returns an error marked with ErrInvalidArgument.
func InvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// MarkInvalidArgument marks err with ErrInvalidArgument.
func MarkInvalidArgument(err error) error {
	return errors.Mark(err, ErrInvalidArgument)
}

// Retryablef returns an error marked with ErrRetryable.
func Retryablef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrRetryable)
}

// StateMismatchf returns an error marked with ErrStateMismatch.
func StateMismatchf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrStateMismatch)
}

// Unexpectedf returns an assertion failure marked with ErrUnexpected.
func Unexpectedf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrUnexpected)
}

// IsRetryable returns true if err signals that the caller should retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsControlSignal returns true if err is one of the iteration control
// signals (ErrBeyondRange, ErrEndOfIteration).
func IsControlSignal(err error) bool {
	return errors.Is(err, ErrBeyondRange) || errors.Is(err, ErrEndOfIteration)
}
