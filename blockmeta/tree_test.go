// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockmeta

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

type testHandle struct {
	released *atomic.Int64
	done     bool
}

func (h *testHandle) Valid() bool { return true }

func (h *testHandle) Release() {
	if h.done {
		panic("handle released twice")
	}
	h.done = true
	h.released.Add(1)
}

func testMeta(key base.RowKey, macro uint64) *Meta {
	return &Meta{
		EndKey:          key,
		RowCount:        10,
		MicroBlockCount: 1,
		MacroID:         MacroBlockID(macro),
		BlockSize:       100,
	}
}

func errClass(err error) string {
	switch {
	case errors.Is(err, base.ErrBeyondRange):
		return "beyond range"
	case errors.Is(err, base.ErrEndOfIteration):
		return "end of iteration"
	case errors.Is(err, base.ErrInvalidArgument):
		return "invalid argument"
	case errors.Is(err, base.ErrNotInitialized):
		return "not initialized"
	case errors.Is(err, base.ErrAlreadyInitialized):
		return "already initialized"
	case errors.Is(err, base.ErrUnexpected):
		return "unexpected"
	default:
		return err.Error()
	}
}

func formatEntry(e *Entry) string {
	return fmt.Sprintf("%s %s", e.Key, e.Meta.MacroID)
}

func scanKey(t *testing.T, td *datadriven.TestData, name string) base.RowKey {
	var s string
	td.ScanArgs(t, name, &s)
	k, err := base.ParseRowKey(s)
	require.NoError(t, err)
	return k
}

func TestTree(t *testing.T) {
	var tree *Tree
	var iter *Iterator
	var released atomic.Int64

	datadriven.RunTest(t, "testdata/tree", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			if tree != nil {
				tree.Destroy()
			}
			released.Store(0)
			tree = &Tree{}
			desc := TreeDesc{}
			if td.HasArg("row-offset") {
				desc.Comparer = base.RowOffsetComparer
			}
			if err := tree.Init(desc); err != nil {
				return errClass(err)
			}
			return ""

		case "insert":
			var buf strings.Builder
			for _, line := range crstrings.Lines(td.Input) {
				fields := strings.Fields(line)
				key, err := base.ParseRowKey(fields[0])
				require.NoError(t, err)
				m := testMeta(key, 0)
				for _, f := range fields[1:] {
					k, v, _ := strings.Cut(f, "=")
					n, err := strconv.ParseInt(v, 10, 64)
					require.NoError(t, err)
					switch k {
					case "macro":
						m.MacroID = MacroBlockID(n)
					case "rows":
						m.RowCount = n
					case "micro":
						m.MicroBlockCount = n
					case "size":
						m.BlockSize = n
					default:
						td.Fatalf(t, "unknown field %q", k)
					}
				}
				if err := tree.Insert(key, m, &testHandle{released: &released}, 0); err != nil {
					fmt.Fprintf(&buf, "%s: %s\n", line, errClass(err))
				}
			}
			fmt.Fprintf(&buf, "len=%d\n", tree.Len())
			return buf.String()

		case "dump":
			metas, err := tree.DumpSorted()
			if err != nil {
				return errClass(err)
			}
			var buf strings.Builder
			for _, m := range metas {
				fmt.Fprintf(&buf, "%s %s\n", m.EndKey, m.MacroID)
			}
			return buf.String()

		case "exists":
			ok, err := tree.Exists(scanKey(t, td, "key"))
			if err != nil {
				return errClass(err)
			}
			return strconv.FormatBool(ok)

		case "lower-bound", "upper-bound":
			key := scanKey(t, td, "key")
			var e *Entry
			var err error
			if td.Cmd == "lower-bound" {
				e, err = tree.LowerBound(key)
			} else {
				e, err = tree.UpperBound(key)
			}
			if err != nil {
				return errClass(err)
			}
			return formatEntry(e)

		case "last-key":
			return tree.LastKey().String()

		case "locate-range", "seek-range":
			r := Range{
				Start:          scanKey(t, td, "start"),
				End:            scanKey(t, td, "end"),
				StartExclusive: td.HasArg("start-exclusive"),
			}
			it, e, err := tree.LocateRange(r, !td.HasArg("no-left"), !td.HasArg("no-right"), td.HasArg("reverse"))
			if err != nil {
				return errClass(err)
			}
			if td.Cmd == "seek-range" {
				iter = it
				return formatEntry(e)
			}
			var buf strings.Builder
			for ; err == nil; e, err = it.Next() {
				fmt.Fprintln(&buf, formatEntry(e))
			}
			require.True(t, errors.Is(err, base.ErrEndOfIteration))
			return buf.String()

		case "locate-key":
			it, e, err := tree.LocateKey(Range{Start: scanKey(t, td, "key"), End: base.MaxRowKey})
			if err != nil {
				return errClass(err)
			}
			iter = it
			return formatEntry(e)

		case "skip-to":
			e, err := tree.SkipTo(scanKey(t, td, "key"), iter)
			if err != nil {
				return errClass(err)
			}
			return formatEntry(e)

		case "advance":
			var n int
			td.ScanArgs(t, "n", &n)
			e, err := tree.Advance(iter, n)
			if err != nil {
				return errClass(err)
			}
			return formatEntry(e)

		case "destroy":
			tree.Destroy()
			return fmt.Sprintf("released=%d", released.Load())

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestTreeLifecycle(t *testing.T) {
	var tree Tree
	_, err := tree.LowerBound(base.IntRowKey(1))
	require.True(t, errors.Is(err, base.ErrNotInitialized))
	err = tree.Insert(base.IntRowKey(1), testMeta(base.IntRowKey(1), 1), &testHandle{released: new(atomic.Int64)}, 0)
	require.True(t, errors.Is(err, base.ErrNotInitialized))
	require.True(t, tree.LastKey().IsMax())

	require.NoError(t, tree.Init(TreeDesc{}))
	require.True(t, errors.Is(tree.Init(TreeDesc{}), base.ErrAlreadyInitialized))
	require.True(t, tree.LastKey().IsMax())
	require.Same(t, base.DefaultComparer, tree.Desc().Comparer)

	h := &testHandle{released: new(atomic.Int64)}
	require.True(t, errors.Is(tree.Insert(base.RowKey{}, testMeta(base.IntRowKey(1), 1), h, 0), base.ErrInvalidArgument))
	require.True(t, errors.Is(tree.Insert(base.IntRowKey(1), nil, h, 0), base.ErrInvalidArgument))
	require.True(t, errors.Is(tree.Insert(base.IntRowKey(1), testMeta(base.IntRowKey(1), 1), nil, 0), base.ErrInvalidArgument))

	require.NoError(t, tree.Insert(base.IntRowKey(1), testMeta(base.IntRowKey(1), 1), h, 0))
	require.Greater(t, tree.MemoryUsed(), int64(0))
	tree.Destroy()
	require.Equal(t, int64(1), h.released.Load())
	require.Equal(t, int64(0), tree.MemoryUsed())

	// A destroyed tree can be initialized again.
	require.NoError(t, tree.Init(TreeDesc{Comparer: base.RowOffsetComparer}))
	require.Equal(t, 0, tree.Len())
	require.Same(t, base.RowOffsetComparer, tree.Desc().Comparer)
}

func TestHeaderValid(t *testing.T) {
	desc := &TreeDesc{RowStoreType: CSEncodingRowStore, Compressor: ZstdCompression, SchemaVersion: 3}
	m := testMeta(base.IntRowKey(1), 7)
	m.IsDeleted = true
	h := makeIndexRowHeader(desc, m)
	require.True(t, h.Valid())
	require.True(t, h.IsDataIndex && !h.IsDataBlock && h.IsLeafBlock && h.IsMacroNode && h.IsMajorNode)
	require.True(t, h.IsDeleted)
	require.Equal(t, int64(1), h.MacroBlockCount)
	require.Equal(t, int64(3), h.SchemaVersion)

	for name, mutate := range map[string]func(h *IndexRowHeader){
		"version":     func(h *IndexRowHeader) { h.Version = 2 },
		"row-store":   func(h *IndexRowHeader) { h.RowStoreType = numRowStoreTypes },
		"compressor":  func(h *IndexRowHeader) { h.Compressor = numCompressorTypes },
		"data-block":  func(h *IndexRowHeader) { h.IsDataBlock = true },
		"macro-id":    func(h *IndexRowHeader) { h.MacroID = 0 },
		"block-size":  func(h *IndexRowHeader) { h.BlockSize = 0 },
		"micro-count": func(h *IndexRowHeader) { h.MicroBlockCount = 0 },
		"row-count":   func(h *IndexRowHeader) { h.RowCount = -1 },
		"encrypt-key": func(h *IndexRowHeader) { h.EncryptKey = make([]byte, MaxEncryptKeyLen+1) },
	} {
		c := h
		mutate(&c)
		require.False(t, c.Valid(), name)
	}
}

// TestTreeRandomized checks the ordering and bound properties against a
// sorted model over random insertion orders.
func TestTreeRandomized(t *testing.T) {
	seed := uint64(rand.Int63())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	var tree Tree
	require.NoError(t, tree.Init(TreeDesc{ArenaBlockSize: 4 << 10}))
	var released atomic.Int64

	const n = 500
	present := make(map[int64]int)
	for i := 0; i < n; i++ {
		k := rng.Int63n(n)
		present[k]++
		require.NoError(t, tree.Insert(base.IntRowKey(k), testMeta(base.IntRowKey(k), uint64(i+1)), &testHandle{released: &released}, 0))
	}

	metas, err := tree.DumpSorted()
	require.NoError(t, err)
	require.Len(t, metas, n)
	for i := 1; i < len(metas); i++ {
		require.LessOrEqual(t, base.DefaultComparer.Compare(metas[i-1].EndKey, metas[i].EndKey), 0)
	}

	for k := int64(-1); k <= n; k++ {
		ok, err := tree.Exists(base.IntRowKey(k))
		require.NoError(t, err)
		require.Equal(t, present[k] > 0, ok, "key %d", k)

		var lower, upper int64 = -1, -1
		for j := k; j < n; j++ {
			if present[j] > 0 && lower < 0 {
				lower = j
			}
			if j > k && present[j] > 0 && upper < 0 {
				upper = j
			}
		}
		e, err := tree.LowerBound(base.IntRowKey(k))
		if lower < 0 {
			require.True(t, errors.Is(err, base.ErrBeyondRange))
		} else {
			require.NoError(t, err)
			require.Equal(t, lower, e.Key.Datum(0).Int())
		}
		e, err = tree.UpperBound(base.IntRowKey(k))
		if upper < 0 {
			require.True(t, errors.Is(err, base.ErrBeyondRange))
		} else {
			require.NoError(t, err)
			require.Equal(t, upper, e.Key.Datum(0).Int())
		}
	}

	// Reverse iteration over a range is the exact reverse of forward
	// iteration.
	for i := 0; i < 50; i++ {
		a, b := rng.Int63n(n), rng.Int63n(n)
		if a > b {
			a, b = b, a
		}
		r := Range{Start: base.IntRowKey(a), End: base.IntRowKey(b)}
		collect := func(reverse bool) []*Meta {
			it, e, err := tree.LocateRange(r, true, true, reverse)
			if errors.Is(err, base.ErrBeyondRange) {
				return nil
			}
			require.NoError(t, err)
			var out []*Meta
			for ; err == nil; e, err = it.Next() {
				out = append(out, e.Meta)
			}
			return out
		}
		fwd, rev := collect(false), collect(true)
		require.Equal(t, len(fwd), len(rev))
		for j := range fwd {
			require.Same(t, fwd[j], rev[len(rev)-1-j])
		}
	}

	tree.Destroy()
	require.Equal(t, int64(n), released.Load())
}

// TestTreeConcurrentInsert inserts from several goroutines while readers
// run range scans.
func TestTreeConcurrentInsert(t *testing.T) {
	var tree Tree
	require.NoError(t, tree.Init(TreeDesc{}))
	var released atomic.Int64

	const writers, perWriter = 4, 250
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				k := base.IntRowKey(int64(i*writers + w))
				if err := tree.Insert(k, testMeta(k, uint64(i*writers+w+1)), &testHandle{released: &released}, 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for r := 0; r < 2; r++ {
		g.Go(func() error {
			for pass := 0; pass < 20; pass++ {
				it, e, err := tree.LocateRange(WholeRange(), true, true, false)
				if errors.Is(err, base.ErrBeyondRange) {
					continue
				} else if err != nil {
					return err
				}
				prev := int64(-1)
				for ; err == nil; e, err = it.Next() {
					k := e.Key.Datum(0).Int()
					if k <= prev {
						return errors.Newf("out of order: %d after %d", k, prev)
					}
					prev = k
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, writers*perWriter, tree.Len())
	metas, err := tree.DumpSorted()
	require.NoError(t, err)
	require.Len(t, metas, writers*perWriter)
}

func TestTreeInvalidKey(t *testing.T) {
	var tree Tree
	require.NoError(t, tree.Init(TreeDesc{Comparer: base.RowOffsetComparer}))
	var released atomic.Int64
	k := base.IntRowKey(10)
	require.NoError(t, tree.Insert(k, testMeta(k, 1), &testHandle{released: &released}, 10))

	var empty base.RowKey
	_, err := tree.Exists(empty)
	require.True(t, errors.Is(err, base.ErrInvalidArgument))
	_, err = tree.LowerBound(empty)
	require.True(t, errors.Is(err, base.ErrInvalidArgument))
	_, err = tree.UpperBound(empty)
	require.True(t, errors.Is(err, base.ErrInvalidArgument))
	_, _, err = tree.LocateKey(Range{Start: empty, End: base.MaxRowKey})
	require.True(t, errors.Is(err, base.ErrInvalidArgument))
	_, _, err = tree.LocateRange(Range{Start: empty, End: base.MaxRowKey}, true, true, false)
	require.True(t, errors.Is(err, base.ErrInvalidArgument))

	it, _, err := tree.LocateRange(WholeRange(), true, true, false)
	require.NoError(t, err)
	_, err = tree.SkipTo(empty, it)
	require.True(t, errors.Is(err, base.ErrInvalidArgument))

	tree.Destroy()
	require.Equal(t, int64(1), released.Load())
}

// TestTreeUnregisterHandle interleaves the bookkeeping of failed inserts with
// successful ones. Forgetting a slot never disturbs another.
func TestTreeUnregisterHandle(t *testing.T) {
	var tree Tree
	require.NoError(t, tree.Init(TreeDesc{}))
	var released, forgotten atomic.Int64

	a := tree.registerHandle(&testHandle{released: &forgotten})
	b := tree.registerHandle(&testHandle{released: &forgotten})
	k := base.IntRowKey(1)
	require.NoError(t, tree.Insert(k, testMeta(k, 1), &testHandle{released: &released}, 0))
	tree.unregisterHandle(b)
	tree.unregisterHandle(a)

	metas, err := tree.DumpSorted()
	require.NoError(t, err)
	require.Len(t, metas, 1)

	tree.Destroy()
	require.Equal(t, int64(1), released.Load())
	require.Equal(t, int64(0), forgotten.Load())
}

// TestTreeDumpDuringInserts dumps the tree while writers insert into it.
func TestTreeDumpDuringInserts(t *testing.T) {
	var tree Tree
	require.NoError(t, tree.Init(TreeDesc{}))
	var released atomic.Int64

	const writers, perWriter = 4, 250
	var done atomic.Int32
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			defer done.Add(1)
			for i := 0; i < perWriter; i++ {
				k := base.IntRowKey(int64(i*writers + w))
				if err := tree.Insert(k, testMeta(k, uint64(i*writers+w+1)), &testHandle{released: &released}, 0); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for done.Load() < writers {
			if _, err := tree.DumpSorted(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	metas, err := tree.DumpSorted()
	require.NoError(t, err)
	require.Len(t, metas, writers*perWriter)
}
