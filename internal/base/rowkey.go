// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DatumKind enumerates the value types a Datum can hold.
type DatumKind uint8

// These constants are part of the ordering of mixed-kind datums under
// DefaultComparer, and should not be reordered.
const (
	DatumNull DatumKind = iota
	DatumInt
	DatumUint
	DatumBytes
)

func (k DatumKind) String() string {
	switch k {
	case DatumNull:
		return "null"
	case DatumInt:
		return "int"
	case DatumUint:
		return "uint"
	case DatumBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Datum is a single typed value of a row key.
type Datum struct {
	kind DatumKind
	num  uint64
	buf  []byte
}

// NullDatum returns a null datum.
func NullDatum() Datum { return Datum{kind: DatumNull} }

// IntDatum returns a signed integer datum.
func IntDatum(v int64) Datum { return Datum{kind: DatumInt, num: uint64(v)} }

// UintDatum returns an unsigned integer datum.
func UintDatum(v uint64) Datum { return Datum{kind: DatumUint, num: v} }

// BytesDatum returns a byte string datum. The slice is retained.
func BytesDatum(v []byte) Datum { return Datum{kind: DatumBytes, buf: v} }

// Kind returns the datum's kind.
func (d Datum) Kind() DatumKind { return d.kind }

// IsNull returns true for a null datum.
func (d Datum) IsNull() bool { return d.kind == DatumNull }

// Int returns the datum as a signed integer.
func (d Datum) Int() int64 { return int64(d.num) }

// Uint returns the datum as an unsigned integer.
func (d Datum) Uint() uint64 { return d.num }

// Bytes returns the datum's byte string.
func (d Datum) Bytes() []byte { return d.buf }

func (d Datum) String() string {
	switch d.kind {
	case DatumNull:
		return "null"
	case DatumInt:
		return strconv.FormatInt(d.Int(), 10)
	case DatumUint:
		return strconv.FormatUint(d.num, 10) + "u"
	case DatumBytes:
		return strconv.Quote(string(d.buf))
	default:
		return "?"
	}
}

// compareDatum orders datums of equal kind naturally and datums of different
// kinds by kind.
func compareDatum(a, b Datum) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case DatumInt:
		return cmp.Compare(a.Int(), b.Int())
	case DatumUint:
		return cmp.Compare(a.num, b.num)
	case DatumBytes:
		return bytes.Compare(a.buf, b.buf)
	default:
		return 0
	}
}

type rowKeyBound int8

const (
	boundNone rowKeyBound = iota
	boundMin
	boundMax
)

// RowKey is an ordered sequence of datums identifying a row. The zero value is
// the empty key, which is not a valid key for insertion. MinRowKey and
// MaxRowKey are sentinels standing for unbounded ends; they compare below and
// above every other key and are never handed to a Compare function.
type RowKey struct {
	datums []Datum
	bound  rowKeyBound
}

var (
	// MinRowKey sorts before every key.
	MinRowKey = RowKey{bound: boundMin}
	// MaxRowKey sorts after every key.
	MaxRowKey = RowKey{bound: boundMax}
)

// MakeRowKey returns a row key over the given datums. The slice is retained.
func MakeRowKey(datums ...Datum) RowKey {
	return RowKey{datums: datums}
}

// IntRowKey returns a row key made of signed integer datums.
func IntRowKey(vals ...int64) RowKey {
	datums := make([]Datum, len(vals))
	for i, v := range vals {
		datums[i] = IntDatum(v)
	}
	return RowKey{datums: datums}
}

// IsMin returns true if k is MinRowKey.
func (k RowKey) IsMin() bool { return k.bound == boundMin }

// IsMax returns true if k is MaxRowKey.
func (k RowKey) IsMax() bool { return k.bound == boundMax }

// IsSentinel returns true if k is MinRowKey or MaxRowKey.
func (k RowKey) IsSentinel() bool { return k.bound != boundNone }

// Valid returns true if k is a sentinel or has at least one datum.
func (k RowKey) Valid() bool { return k.bound != boundNone || len(k.datums) > 0 }

// Len returns the number of datums.
func (k RowKey) Len() int { return len(k.datums) }

// Datum returns the i'th datum.
func (k RowKey) Datum(i int) Datum { return k.datums[i] }

// Datums returns the datums of k. The caller must not modify them.
func (k RowKey) Datums() []Datum { return k.datums }

// Clone returns a copy of k whose datum slice is not shared with k. Byte
// strings are immutable and remain shared.
func (k RowKey) Clone() RowKey {
	if k.datums == nil {
		return k
	}
	return RowKey{datums: append([]Datum(nil), k.datums...), bound: k.bound}
}

// WithLeading returns a copy of k whose first datum is replaced by d.
func (k RowKey) WithLeading(d Datum) RowKey {
	c := k.Clone()
	if len(c.datums) > 0 {
		c.datums[0] = d
	}
	return c
}

func (k RowKey) String() string {
	switch k.bound {
	case boundMin:
		return "MIN"
	case boundMax:
		return "MAX"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range k.datums {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(d.String())
	}
	b.WriteByte(']')
	return b.String()
}

// ParseRowKey parses the String form of a row key: MIN, MAX, or a bracketed
// comma separated list of integers (a trailing "u" marks unsigned), quoted
// strings and null. The brackets are optional.
func ParseRowKey(s string) (RowKey, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "MIN":
		return MinRowKey, nil
	case "MAX":
		return MaxRowKey, nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return RowKey{}, nil
	}
	var datums []Datum
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		switch {
		case f == "null":
			datums = append(datums, NullDatum())
		case strings.HasPrefix(f, `"`):
			v, err := strconv.Unquote(f)
			if err != nil {
				return RowKey{}, MarkInvalidArgument(errors.Wrapf(err, "parsing datum %q", f))
			}
			datums = append(datums, BytesDatum([]byte(v)))
		case strings.HasSuffix(f, "u"):
			v, err := strconv.ParseUint(strings.TrimSuffix(f, "u"), 10, 64)
			if err != nil {
				return RowKey{}, MarkInvalidArgument(errors.Wrapf(err, "parsing datum %q", f))
			}
			datums = append(datums, UintDatum(v))
		default:
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return RowKey{}, MarkInvalidArgument(errors.Wrapf(err, "parsing datum %q", f))
			}
			datums = append(datums, IntDatum(v))
		}
	}
	return RowKey{datums: datums}, nil
}

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b. Neither a nor b is ever a sentinel.
type Compare func(a, b RowKey) int

// Comparer names a Compare function. The name is recorded in the descriptor
// of every memtable so that readers can check they agree on the ordering.
type Comparer struct {
	Compare Compare
	Name    string
}

// EnsureDefaults returns c, or DefaultComparer if c is nil.
func (c *Comparer) EnsureDefaults() *Comparer {
	if c == nil || c.Compare == nil {
		return DefaultComparer
	}
	return c
}

// DefaultComparer orders row keys datum by datum. A key that is a prefix of
// another sorts first.
var DefaultComparer = &Comparer{
	Compare: func(a, b RowKey) int {
		n := min(len(a.datums), len(b.datums))
		for i := 0; i < n; i++ {
			if c := compareDatum(a.datums[i], b.datums[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.datums), len(b.datums))
	},
	Name: "directload.DatumComparator",
}

// RowOffsetComparer orders keys by their leading datum interpreted as a signed
// row offset. It is used for column groups without a table level row key,
// whose blocks are positioned by their ending row offset in the combined
// output.
var RowOffsetComparer = &Comparer{
	Compare: func(a, b RowKey) int {
		return cmp.Compare(a.datums[0].Int(), b.datums[0].Int())
	},
	Name: "directload.RowOffsetComparator",
}

// CompareWithBounds compares a and b using cmp, handling the MinRowKey and
// MaxRowKey sentinels without invoking cmp.
func CompareWithBounds(cmp Compare, a, b RowKey) int {
	if a.bound != boundNone || b.bound != boundNone {
		return boundRank(a) - boundRank(b)
	}
	return cmp(a, b)
}

func boundRank(k RowKey) int {
	switch k.bound {
	case boundMin:
		return -1
	case boundMax:
		return 1
	}
	return 0
}
