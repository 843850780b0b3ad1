// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import "github.com/cockroachdb/directload/internal/base"

var (
	// ErrInvalidArgument is returned for malformed blocks, keys, SCNs and
	// identifiers.
	ErrInvalidArgument = base.ErrInvalidArgument
	// ErrNotInitialized is returned by operations on an uninitialized
	// container or memtable.
	ErrNotInitialized = base.ErrNotInitialized
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = base.ErrAlreadyInitialized
	// ErrRetryable is returned when an operation cannot complete yet.
	ErrRetryable = base.ErrRetryable
	// ErrStateMismatch is returned when an operation requires a frozen
	// container.
	ErrStateMismatch = base.ErrStateMismatch
	// ErrBeyondRange is returned by tree lookups that find no entry.
	ErrBeyondRange = base.ErrBeyondRange
	// ErrEndOfIteration is returned by an exhausted tree iterator.
	ErrEndOfIteration = base.ErrEndOfIteration
	// ErrUnexpected marks a broken invariant.
	ErrUnexpected = base.ErrUnexpected
)

// IsRetryable returns true if err indicates the operation should be retried
// later, possibly against a different container.
func IsRetryable(err error) bool {
	return base.IsRetryable(err)
}
