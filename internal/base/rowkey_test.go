// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func mustParseRowKey(t *testing.T, s string) RowKey {
	k, err := ParseRowKey(s)
	require.NoError(t, err)
	return k
}

func TestParseRowKey(t *testing.T) {
	for _, s := range []string{`[1]`, `[1,2,3]`, `[-7,"abc",null]`, `[18446744073709551615u]`, `MIN`, `MAX`} {
		k := mustParseRowKey(t, s)
		require.Equal(t, s, k.String())
	}
	require.Equal(t, "[1,2]", mustParseRowKey(t, "1, 2").String())
	require.False(t, mustParseRowKey(t, "[]").Valid())

	_, err := ParseRowKey(`[1,x]`)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = ParseRowKey(`["unterminated]`)
	require.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestDefaultComparer(t *testing.T) {
	testCases := []struct {
		a, b string
		want int
	}{
		{`[1]`, `[1]`, 0},
		{`[1]`, `[2]`, -1},
		{`[-1]`, `[1]`, -1},
		{`[1]`, `[1,0]`, -1},
		{`[1,5]`, `[2]`, -1},
		{`["a"]`, `["b"]`, -1},
		{`["ab"]`, `["a"]`, 1},
		{`[null]`, `[0]`, -1},
		{`[5u]`, `[7u]`, -1},
		{`[5]`, `[5u]`, -1},
	}
	for _, tc := range testCases {
		a, b := mustParseRowKey(t, tc.a), mustParseRowKey(t, tc.b)
		require.Equal(t, tc.want, DefaultComparer.Compare(a, b), "%s vs %s", tc.a, tc.b)
		require.Equal(t, -tc.want, DefaultComparer.Compare(b, a), "%s vs %s", tc.b, tc.a)
	}
}

func TestRowOffsetComparer(t *testing.T) {
	a := MakeRowKey(IntDatum(10), BytesDatum([]byte("z")))
	b := MakeRowKey(IntDatum(10), BytesDatum([]byte("a")))
	c := IntRowKey(11)
	require.Equal(t, 0, RowOffsetComparer.Compare(a, b))
	require.Equal(t, -1, RowOffsetComparer.Compare(b, c))
}

func TestCompareWithBounds(t *testing.T) {
	// The comparer is never consulted for a sentinel.
	cmp := func(a, b RowKey) int {
		require.False(t, a.IsSentinel())
		require.False(t, b.IsSentinel())
		return DefaultComparer.Compare(a, b)
	}
	keys := []RowKey{MaxRowKey, IntRowKey(3), MinRowKey, IntRowKey(-100), IntRowKey(1, 2)}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	slices.SortFunc(keys, func(a, b RowKey) int { return CompareWithBounds(cmp, a, b) })
	var got []string
	for _, k := range keys {
		got = append(got, k.String())
	}
	require.Equal(t, []string{"MIN", "[-100]", "[1,2]", "[3]", "MAX"}, got)
	require.Equal(t, 0, CompareWithBounds(cmp, MaxRowKey, MaxRowKey))
	require.Equal(t, 0, CompareWithBounds(cmp, MinRowKey, MinRowKey))
}

func TestRowKeyWithLeading(t *testing.T) {
	k := IntRowKey(1, 2)
	c := k.WithLeading(IntDatum(99))
	require.Equal(t, "[99,2]", c.String())
	require.Equal(t, "[1,2]", k.String())
}

func TestComparerEnsureDefaults(t *testing.T) {
	var c *Comparer
	require.Equal(t, DefaultComparer, c.EnsureDefaults())
	require.Equal(t, RowOffsetComparer, RowOffsetComparer.EnsureDefaults())
}
