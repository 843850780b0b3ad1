// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math"
	"strconv"

	"github.com/cockroachdb/redact"
)

// SCN is a system change number: a monotonically increasing position in a
// log stream used to order and bound writes and reads. Every direct-load block
// carries the SCN at which its redo record was written, and every container is
// bounded by the SCN window [PriorFreezeSCN, FreezeSCN].
type SCN uint64

const (
	// SCNInvalid is the zero value and is never a valid position.
	SCNInvalid SCN = 0
	// SCNMin is the smallest valid SCN. It is used as the "nothing observed
	// yet" lower watermark and is rejected wherever an SCN must identify a
	// real log position.
	SCNMin SCN = 1
	// SCNMax is the largest SCN. An unfrozen container uses it as its freeze
	// boundary so that no block is ever beyond it.
	SCNMax SCN = math.MaxUint64
)

// IsValid returns true if s is not SCNInvalid.
func (s SCN) IsValid() bool {
	return s != SCNInvalid
}

// IsValidAndNotMin returns true if s identifies a real log position.
func (s SCN) IsValidAndNotMin() bool {
	return s != SCNInvalid && s != SCNMin
}

// Plus returns s+n, saturating at SCNMax.
func (s SCN) Plus(n uint64) SCN {
	if uint64(SCNMax-s) < n {
		return SCNMax
	}
	return s + SCN(n)
}

// MinSCN returns the smaller of a and b.
func MinSCN(a, b SCN) SCN {
	if a < b {
		return a
	}
	return b
}

// MaxSCN returns the larger of a and b.
func MaxSCN(a, b SCN) SCN {
	if a > b {
		return a
	}
	return b
}

func (s SCN) String() string {
	switch s {
	case SCNInvalid:
		return "invalid"
	case SCNMin:
		return "min"
	case SCNMax:
		return "max"
	}
	return strconv.FormatUint(uint64(s), 10)
}

// SafeFormat implements redact.SafeFormatter.
func (s SCN) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// ParseSCN parses the string representation produced by SCN.String. It is
// used by tests and tooling.
func ParseSCN(s string) (SCN, error) {
	switch s {
	case "invalid":
		return SCNInvalid, nil
	case "min":
		return SCNMin, nil
	case "max":
		return SCNMax, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return SCNInvalid, MarkInvalidArgument(err)
	}
	return SCN(v), nil
}
