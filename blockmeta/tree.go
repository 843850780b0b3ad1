// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockmeta

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/directload/internal/arenaskl"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
)

// TreeDesc holds the parameters shared by every entry of a tree.
type TreeDesc struct {
	// Comparer orders the entries' keys. Defaults to base.DefaultComparer.
	Comparer      *base.Comparer
	RowStoreType  RowStoreType
	Compressor    CompressorType
	MasterKeyID   int64
	EncryptID     int64
	EncryptKey    []byte
	SchemaVersion int64
	// ArenaBlockSize is the size of the blocks node memory is carved from.
	// Defaults to arenaskl.DefaultBlockSize. It is ignored when a destroyed
	// tree is re-initialized, which reuses its arena.
	ArenaBlockSize uint32
}

// Entry is one element of a Tree.
type Entry struct {
	// Key is the sort key: the block's end row key, or for column groups
	// keyed by row offset, a key whose leading datum is the offset.
	Key       base.RowKey
	Meta      *Meta
	Header    IndexRowHeader
	RowOffset int64
}

// Tree is an ordered index of block metadata. It is safe for concurrent
// inserts and concurrent reads; iteration never observes a partially inserted
// entry. Keys comparing equal are all retained and iterate in arrival order.
//
// The zero value must be initialized with Init before use.
type Tree struct {
	desc      TreeDesc
	cmp       base.Compare
	arena     *arenaskl.Arena
	list      *arenaskl.Skiplist[*Entry]
	inited    atomic.Bool
	footprint atomic.Int64

	mu struct {
		sync.Mutex
		// handles holds one handle per inserted entry. The slot of a failed
		// insert is cleared but never reused.
		handles []Handle
		// live counts the non-nil slots of handles.
		live int
	}
}

// Init prepares the tree for use.
func (t *Tree) Init(desc TreeDesc) error {
	if t.inited.Load() {
		return errors.Mark(errors.New("block meta tree already initialized"), base.ErrAlreadyInitialized)
	}
	if len(desc.EncryptKey) > MaxEncryptKeyLen {
		return base.InvalidArgumentf("encrypt key of %d bytes exceeds %d", len(desc.EncryptKey), MaxEncryptKeyLen)
	}
	desc.Comparer = desc.Comparer.EnsureDefaults()
	if desc.ArenaBlockSize == 0 {
		desc.ArenaBlockSize = arenaskl.DefaultBlockSize
	}
	t.desc = desc
	t.cmp = desc.Comparer.Compare
	cmp := t.cmp
	entryCmp := func(a, b *Entry) int {
		return base.CompareWithBounds(cmp, a.Key, b.Key)
	}
	if t.arena == nil {
		t.arena = arenaskl.NewArena(desc.ArenaBlockSize)
	}
	if t.list == nil {
		t.list = arenaskl.NewSkiplist(t.arena, entryCmp)
	} else {
		t.list.Reset(t.arena, entryCmp)
	}
	t.footprint.Store(0)
	t.inited.Store(true)
	return nil
}

// Desc returns the descriptor the tree was initialized with.
func (t *Tree) Desc() *TreeDesc { return &t.desc }

// Insert adds an entry for the block described by meta under key. The tree
// takes ownership of meta and handle.
func (t *Tree) Insert(key base.RowKey, meta *Meta, handle Handle, rowOffset int64) error {
	if !t.inited.Load() {
		return errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !key.Valid() || key.IsSentinel() || meta == nil || handle == nil || !handle.Valid() {
		return base.InvalidArgumentf("invalid block: key=%s meta=%v handle=%v", key, meta != nil, handle != nil)
	}
	e := &Entry{
		Key:       key,
		Meta:      meta,
		Header:    makeIndexRowHeader(&t.desc, meta),
		RowOffset: rowOffset,
	}
	if !e.Header.Valid() {
		return base.Unexpectedf("built an invalid index row header for %s", meta)
	}

	slot := t.registerHandle(handle)
	if err := t.list.Add(e); err != nil {
		t.unregisterHandle(slot)
		return errors.Wrapf(err, "inserting %s", meta)
	}
	t.footprint.Add(meta.footprint())
	return nil
}

// registerHandle records handle ahead of linking its entry and returns its
// slot.
func (t *Tree) registerHandle(handle Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mu.handles = append(t.mu.handles, handle)
	t.mu.live++
	return len(t.mu.handles) - 1
}

// unregisterHandle forgets the handle in slot without releasing it. Other
// slots are unaffected.
func (t *Tree) unregisterHandle(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mu.handles[slot] = nil
	t.mu.live--
}

// probe returns an entry usable as a search key.
func probe(key base.RowKey) *Entry {
	return &Entry{Key: key}
}

// Exists returns true if some entry's key compares equal to key.
func (t *Tree) Exists(key base.RowKey) (bool, error) {
	if !t.inited.Load() {
		return false, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !key.Valid() {
		return false, base.InvalidArgumentf("invalid key %s", key)
	}
	it := t.list.NewIter()
	if !it.SeekGE(probe(key)) {
		return false, nil
	}
	return base.CompareWithBounds(t.cmp, it.Entry().Key, key) == 0, nil
}

// LowerBound returns the first entry whose key is >= key, or
// base.ErrBeyondRange if there is none.
func (t *Tree) LowerBound(key base.RowKey) (*Entry, error) {
	if !t.inited.Load() {
		return nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !key.Valid() {
		return nil, base.InvalidArgumentf("invalid key %s", key)
	}
	it := t.list.NewIter()
	if !it.SeekGE(probe(key)) {
		return nil, base.ErrBeyondRange
	}
	return it.Entry(), nil
}

// UpperBound returns the first entry whose key is > key, or
// base.ErrBeyondRange if there is none.
func (t *Tree) UpperBound(key base.RowKey) (*Entry, error) {
	if !t.inited.Load() {
		return nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	if !key.Valid() {
		return nil, base.InvalidArgumentf("invalid key %s", key)
	}
	it := t.list.NewIter()
	if !it.SeekGT(probe(key)) {
		return nil, base.ErrBeyondRange
	}
	return it.Entry(), nil
}

// DumpSorted returns the metadata of every entry in ascending key order.
func (t *Tree) DumpSorted() ([]*Meta, error) {
	if !t.inited.Load() {
		return nil, errors.Mark(errors.New("block meta tree not initialized"), base.ErrNotInitialized)
	}
	var metas []*Meta
	it := t.list.NewIter()
	for valid := it.First(); valid; valid = it.Next() {
		metas = append(metas, it.Entry().Meta)
	}
	// A linked entry always has its handle registered, while a concurrent
	// insert may have registered a handle whose entry is not linked yet.
	t.mu.Lock()
	handles := t.mu.live
	t.mu.Unlock()
	if len(metas) > handles {
		return nil, base.Unexpectedf("dumped %d entries but hold %d block handles", len(metas), handles)
	}
	return metas, nil
}

// LastKey returns the largest key in the tree, or base.MaxRowKey if the tree
// is empty.
func (t *Tree) LastKey() base.RowKey {
	if !t.inited.Load() {
		return base.MaxRowKey
	}
	it := t.list.NewIter()
	if !it.Last() {
		return base.MaxRowKey
	}
	return it.Entry().Key
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	if !t.inited.Load() {
		return 0
	}
	return t.list.Len()
}

// MemoryUsed returns the number of bytes retained by the tree's nodes and
// entries.
func (t *Tree) MemoryUsed() int64 {
	if !t.inited.Load() {
		return 0
	}
	return int64(t.arena.Capacity()) + t.footprint.Load()
}

// Destroy releases every block handle and all node memory. The tree must be
// re-initialized before it is used again. There must be no concurrent
// readers.
func (t *Tree) Destroy() {
	t.mu.Lock()
	handles := t.mu.handles
	t.mu.handles = nil
	t.mu.live = 0
	t.mu.Unlock()
	for _, h := range handles {
		if h != nil {
			h.Release()
		}
	}
	if t.arena != nil {
		t.arena.Reset()
	}
	t.footprint.Store(0)
	t.inited.Store(false)
}
