// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types shared by the direct-load packages:
// system change numbers, row keys and their comparers, the logger interface
// and the error taxonomy.
//
// # Errors
//
// Every error returned by the direct-load packages is marked with exactly one
// of the sentinels in this package and should be classified with errors.Is.
// ErrBeyondRange and ErrEndOfIteration are control signals that callers turn
// into boundary sentinels or loop termination. ErrRetryable means the
// operation cannot complete yet and should be polled again, possibly against
// a successor container. ErrUnexpected marks a defect.
//
// # Row keys
//
// A RowKey is compared with an externally supplied Compare function. The
// MinRowKey and MaxRowKey sentinels stand for unbounded range ends and are
// resolved by CompareWithBounds without consulting the Compare function.
package base
