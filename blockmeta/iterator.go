// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockmeta

import (
	"github.com/cockroachdb/directload/internal/arenaskl"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
)

// Range is a span of row keys. Either end may be base.MinRowKey or
// base.MaxRowKey. Each entry's key is the end key of its block, so the block
// holding End is always part of the range and End carries no openness.
type Range struct {
	Start base.RowKey
	End   base.RowKey
	// StartExclusive excludes entries whose key equals Start.
	StartExclusive bool
}

// WholeRange returns the range spanning every key.
func WholeRange() Range {
	return Range{Start: base.MinRowKey, End: base.MaxRowKey}
}

// Iterator walks the entries of a Tree selected by LocateRange or LocateKey.
// It is positioned at an entry until it is exhausted. An Iterator is not safe
// for concurrent use, but any number of iterators may run concurrently with
// inserts into the tree.
type Iterator struct {
	tree    *Tree
	iter    arenaskl.Iterator[*Entry]
	reverse bool
	// bound is the last key iteration may yield: an upper bound when moving
	// forward and a lower bound in reverse.
	bound          base.RowKey
	boundExclusive bool
	valid          bool
}

// Valid returns true if the iterator is positioned at an entry.
func (i *Iterator) Valid() bool { return i.valid }

// Reverse returns true if the iterator yields entries in descending order.
func (i *Iterator) Reverse() bool { return i.reverse }

// Entry returns the current entry, or nil if the iterator is exhausted.
func (i *Iterator) Entry() *Entry {
	if !i.valid {
		return nil
	}
	return i.iter.Entry()
}

// Next moves to the following entry and returns it, or returns
// base.ErrEndOfIteration.
func (i *Iterator) Next() (*Entry, error) {
	if !i.step() {
		return nil, base.ErrEndOfIteration
	}
	return i.iter.Entry(), nil
}

func (i *Iterator) step() bool {
	if !i.valid {
		return false
	}
	if i.reverse {
		i.valid = i.iter.Prev()
	} else {
		i.valid = i.iter.Next()
	}
	i.checkBound()
	return i.valid
}

func (i *Iterator) checkBound() {
	if !i.valid {
		return
	}
	c := base.CompareWithBounds(i.tree.cmp, i.iter.Entry().Key, i.bound)
	if i.reverse {
		c = -c
	}
	i.valid = c < 0 || (c == 0 && !i.boundExclusive)
}

// LocateRange returns an iterator positioned at the first entry of r in the
// requested direction, along with that entry. When leftBorder is false the
// start of r is treated as unbounded, and likewise rightBorder for the end.
//
// The start is resolved strictly: the lower bound of r.Start, or its upper
// bound if r.StartExclusive, and base.ErrBeyondRange is returned if there is
// none. The end resolves to the lower bound of r.End and degrades to
// base.MaxRowKey if r.End is beyond every entry. base.ErrBeyondRange is also
// returned if no entry lies in the range.
func (t *Tree) LocateRange(
	r Range, leftBorder, rightBorder, reverse bool,
) (*Iterator, *Entry, error) {
	if !t.inited.Load() {
		return nil, nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !r.Start.Valid() || !r.End.Valid() {
		return nil, nil, base.InvalidArgumentf("invalid range [%s, %s]", r.Start, r.End)
	}

	startKey := base.MinRowKey
	startBounded := leftBorder && !r.Start.IsMin()
	if startBounded {
		var start *Entry
		var err error
		if r.StartExclusive {
			start, err = t.UpperBound(r.Start)
		} else {
			start, err = t.LowerBound(r.Start)
		}
		if err != nil {
			return nil, nil, err
		}
		startKey = start.Key
	}

	endKey := base.MaxRowKey
	endBounded := rightBorder && !r.End.IsMax()
	if endBounded {
		end, err := t.LowerBound(r.End)
		switch {
		case errors.Is(err, base.ErrBeyondRange):
			endBounded = false
		case err != nil:
			return nil, nil, err
		default:
			endKey = end.Key
		}
	}

	if base.CompareWithBounds(t.cmp, startKey, endKey) > 0 {
		return nil, nil, base.Unexpectedf("range start %s is beyond range end %s", startKey, endKey)
	}

	i := &Iterator{tree: t, iter: t.list.NewIter(), reverse: reverse}
	if !reverse {
		i.bound = endKey
		if startBounded {
			i.valid = i.iter.SeekGE(probe(startKey))
		} else {
			i.valid = i.iter.First()
		}
	} else {
		i.bound = startKey
		if endBounded {
			i.valid = i.iter.SeekLE(probe(endKey))
		} else {
			i.valid = i.iter.Last()
		}
	}
	i.checkBound()
	if !i.valid {
		return nil, nil, base.ErrBeyondRange
	}
	return i, i.iter.Entry(), nil
}

// LocateKey returns an iterator positioned at the lower bound of r.Start and
// that entry. The iterator yields no further entries.
func (t *Tree) LocateKey(r Range) (*Iterator, *Entry, error) {
	if !t.inited.Load() {
		return nil, nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !r.Start.Valid() {
		return nil, nil, base.InvalidArgumentf("invalid key %s", r.Start)
	}
	e, err := t.LowerBound(r.Start)
	if err != nil {
		return nil, nil, err
	}
	i := &Iterator{tree: t, iter: t.list.NewIter(), bound: e.Key, boundExclusive: true}
	i.valid = i.iter.SeekGE(probe(e.Key))
	return i, i.iter.Entry(), nil
}

// SkipTo advances it, without repositioning it, to the next entry whose key
// is >= key (<= key for a reverse iterator) and returns that entry. It
// returns base.ErrEndOfIteration if the iterator runs out first.
func (t *Tree) SkipTo(key base.RowKey, it *Iterator) (*Entry, error) {
	if !t.inited.Load() {
		return nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if it == nil || it.tree != t {
		return nil, base.InvalidArgumentf("iterator does not belong to this tree")
	}
	if !key.Valid() {
		return nil, base.InvalidArgumentf("invalid key %s", key)
	}
	for it.step() {
		e := it.iter.Entry()
		c := base.CompareWithBounds(t.cmp, e.Key, key)
		if (!it.reverse && c >= 0) || (it.reverse && c <= 0) {
			return e, nil
		}
	}
	return nil, base.ErrEndOfIteration
}

// Advance steps it forward n positions in its direction and returns the
// entry there. It returns base.ErrEndOfIteration if the iterator runs out
// first.
func (t *Tree) Advance(it *Iterator, n int) (*Entry, error) {
	if !t.inited.Load() {
		return nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if n <= 0 {
		return nil, base.InvalidArgumentf("invalid step %d", n)
	}
	if it == nil || it.tree != t {
		return nil, base.InvalidArgumentf("iterator does not belong to this tree")
	}
	for j := 0; j < n; j++ {
		if !it.step() {
			return nil, base.ErrEndOfIteration
		}
	}
	return it.iter.Entry(), nil
}
