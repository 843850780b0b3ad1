// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/directload/blockmeta"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/directload/internal/invariants"
	"github.com/cockroachdb/errors"
)

// TableType is the kind of table a memtable is merged into.
type TableType uint8

const (
	// TableTypeDDLMem is a row store table.
	TableTypeDDLMem TableType = iota + 1
	// TableTypeDDLMemCG is a column group without a row key.
	TableTypeDDLMemCG
	// TableTypeDDLMemCO is the row key carrying column group of a columnar
	// table.
	TableTypeDDLMemCO
)

func (t TableType) String() string {
	switch t {
	case TableTypeDDLMem:
		return "ddl-mem"
	case TableTypeDDLMemCG:
		return "ddl-mem-cg"
	case TableTypeDDLMemCO:
		return "ddl-mem-co"
	default:
		return fmt.Sprintf("TableType(%d)", uint8(t))
	}
}

// multiVersionColumns is the number of hidden columns a multi-version row
// key carries after the table's own row key columns.
const multiVersionColumns = 2

// indexTreeHeight is the height of the index of a merged table.
const indexTreeHeight = 2

// TableDesc describes the table a memtable's blocks are merged into.
type TableDesc struct {
	Key               TableKey
	Type              TableType
	RowKeyColumnCount int
	ColumnCount       int
	SchemaVersion     int64
	RowStoreType      blockmeta.RowStoreType
	Compressor        blockmeta.CompressorType
	MasterKeyID       int64
	EncryptID         int64
	EncryptKey        []byte
	// SnapshotVersion and MaxMergedTransVersion are both the load's
	// snapshot version.
	SnapshotVersion       int64
	MaxMergedTransVersion int64
	// DDLSCN is the load epoch.
	DDLSCN             SCN
	IndexTreeHeight    int
	ContainUncommitted bool
	ReadyForRead       bool
	// ComparerName names the ordering of the memtable's tree.
	ComparerName string
}

// SCNRange is the closed range of log positions a memtable covers.
type SCNRange struct {
	Start SCN
	End   SCN
}

func (r SCNRange) String() string {
	return fmt.Sprintf("[%s,%s]", r.Start, r.End)
}

// MemtableStats are the aggregates of the blocks held by a memtable.
type MemtableStats struct {
	MacroBlockCount       int64
	MicroBlockCount       int64
	MaxMergedTransVersion int64
	// DataChecksum folds the data checksums of the blocks in arrival order.
	DataChecksum uint64
	RowCount     int64
	OccupySize   int64
	OriginalSize int64
}

// MemtableOptions are the parameters of a memtable not derived from the
// storage schema.
type MemtableOptions struct {
	// Comparer orders row keys. Defaults to base.DefaultComparer. Normal
	// column groups ignore it and order blocks by row offset.
	Comparer *Comparer
	// ArenaBlockSize is the size of the blocks tree node memory is carved
	// from.
	ArenaBlockSize uint32
}

// Memtable accumulates the blocks of one column group of a load. Inserts may
// run concurrently with each other and with reads of the tree.
type Memtable struct {
	desc          TableDesc
	tree          blockmeta.Tree
	rowOffsetKeys bool
	closeChecker  invariants.CloseChecker

	mu struct {
		sync.Mutex
		inited   bool
		stats    MemtableStats
		scnRange SCNRange
	}
}

// Init prepares the memtable for the table identified by key.
func (m *Memtable) Init(
	key TableKey, epoch SCN, formatVersion uint64, schema *StorageSchema, opts MemtableOptions,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.inited {
		return errors.Mark(errors.Newf("memtable %s already initialized", key), base.ErrAlreadyInitialized)
	}
	if !key.Valid() || !epoch.IsValidAndNotMin() || formatVersion == 0 || schema == nil {
		return base.InvalidArgumentf("invalid memtable arguments: key=%s epoch=%s format=%d schema=%t",
			key, epoch, formatVersion, schema != nil)
	}
	desc, err := makeTableDesc(key, epoch, schema)
	if err != nil {
		return err
	}
	cmp := opts.Comparer.EnsureDefaults()
	if desc.Type == TableTypeDDLMemCG {
		cmp = base.RowOffsetComparer
	}
	desc.ComparerName = cmp.Name
	if err := m.tree.Init(blockmeta.TreeDesc{
		Comparer:       cmp,
		RowStoreType:   schema.RowStoreType,
		Compressor:     schema.Compressor,
		MasterKeyID:    schema.MasterKeyID,
		EncryptID:      schema.EncryptID,
		EncryptKey:     schema.EncryptKey,
		SchemaVersion:  schema.SchemaVersion,
		ArenaBlockSize: opts.ArenaBlockSize,
	}); err != nil {
		return errors.Wrapf(err, "initializing memtable %s", key)
	}
	m.desc = desc
	m.rowOffsetKeys = desc.Type == TableTypeDDLMemCG
	m.closeChecker.Reset()
	m.mu.stats = MemtableStats{}
	m.mu.scnRange = SCNRange{}
	m.mu.inited = true
	return nil
}

func makeTableDesc(key TableKey, epoch SCN, schema *StorageSchema) (TableDesc, error) {
	d := TableDesc{
		Key:                   key,
		SchemaVersion:         schema.SchemaVersion,
		RowStoreType:          schema.RowStoreType,
		Compressor:            schema.Compressor,
		MasterKeyID:           schema.MasterKeyID,
		EncryptID:             schema.EncryptID,
		EncryptKey:            schema.EncryptKey,
		SnapshotVersion:       key.SnapshotVersion,
		MaxMergedTransVersion: key.SnapshotVersion,
		DDLSCN:                epoch,
		IndexTreeHeight:       indexTreeHeight,
		ContainUncommitted:    false,
		ReadyForRead:          true,
	}
	switch {
	case key.GroupID == RowStoreGroup:
		if schema.IsColumnar() {
			return TableDesc{}, base.InvalidArgumentf("row store block for columnar table %s", key)
		}
		d.Type = TableTypeDDLMem
		d.RowKeyColumnCount = schema.RowKeyColumnCount + multiVersionColumns
		d.ColumnCount = schema.StoredColumnCount
	case key.GroupID >= int64(len(schema.ColumnGroups)):
		return TableDesc{}, base.Unexpectedf("column group %d out of range of %d groups",
			key.GroupID, len(schema.ColumnGroups))
	default:
		switch cg := schema.ColumnGroups[key.GroupID]; cg.Type {
		case ColumnGroupNormal:
			d.Type = TableTypeDDLMemCG
			d.RowKeyColumnCount = 0
			d.ColumnCount = 1
		case ColumnGroupRowkey:
			d.Type = TableTypeDDLMemCO
			d.RowKeyColumnCount = schema.RowKeyColumnCount + multiVersionColumns
			d.ColumnCount = schema.RowKeyColumnCount + multiVersionColumns
		case ColumnGroupAll:
			d.Type = TableTypeDDLMemCO
			d.RowKeyColumnCount = schema.RowKeyColumnCount + multiVersionColumns
			d.ColumnCount = schema.StoredColumnCount
		default:
			return TableDesc{}, base.Unexpectedf("column group %d has unknown type %s", key.GroupID, cg.Type)
		}
	}
	return d, nil
}

// Insert adds the block described by meta. For column groups keyed by row
// offset, the leading datum of meta.EndKey must already hold rowOffset. The
// memtable takes ownership of handle and meta on success.
func (m *Memtable) Insert(handle blockmeta.Handle, meta *blockmeta.Meta, rowOffset int64) error {
	if !m.initialized() {
		return errors.Mark(errors.New("memtable not initialized"), base.ErrNotInitialized)
	}
	if meta == nil {
		return base.InvalidArgumentf("nil block meta")
	}
	if err := m.tree.Insert(meta.EndKey, meta, handle, rowOffset); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.mu.stats
	s.MacroBlockCount++
	s.MicroBlockCount += meta.MicroBlockCount
	s.MaxMergedTransVersion = max(s.MaxMergedTransVersion, meta.MaxMergedTransVersion)
	s.DataChecksum = foldChecksum(s.DataChecksum, meta.DataChecksum)
	s.RowCount += meta.RowCount
	s.OccupySize += meta.OccupySize
	s.OriginalSize += meta.OriginalSize
	return nil
}

func foldChecksum(acc, v uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], acc)
	binary.LittleEndian.PutUint64(buf[8:], v)
	return xxhash.Sum64(buf[:])
}

func (m *Memtable) initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.inited
}

// RowOffsetKeyed returns true if blocks are ordered by their ending row
// offset rather than by row key.
func (m *Memtable) RowOffsetKeyed() bool { return m.rowOffsetKeys }

// SetSCNRange records the log positions covered by the memtable.
func (m *Memtable) SetSCNRange(start, end SCN) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.scnRange = SCNRange{Start: start, End: end}
}

// SCNRange returns the range last set by SetSCNRange.
func (m *Memtable) SCNRange() SCNRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.scnRange
}

// DumpSorted returns the metadata of every block in tree order.
func (m *Memtable) DumpSorted() ([]*blockmeta.Meta, error) {
	return m.tree.DumpSorted()
}

// GroupID returns the column group of the memtable.
func (m *Memtable) GroupID() int64 { return m.desc.Key.GroupID }

// Desc returns the descriptor of the table the memtable is merged into.
func (m *Memtable) Desc() *TableDesc { return &m.desc }

// Stats returns the aggregates of the blocks inserted so far.
func (m *Memtable) Stats() MemtableStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.stats
}

// Tree returns the block meta tree backing the memtable, for range reads.
func (m *Memtable) Tree() *blockmeta.Tree { return &m.tree }

// MemoryUsed returns the memory retained by the memtable's tree.
func (m *Memtable) MemoryUsed() int64 { return m.tree.MemoryUsed() }

// Reset releases every block handle and returns the memtable to its
// uninitialized state. There must be no concurrent readers. A memtable must
// be re-initialized before it is reset again.
func (m *Memtable) Reset() {
	m.closeChecker.Close()
	m.tree.Destroy()
	m.desc = TableDesc{}
	m.rowOffsetKeys = false
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.inited = false
	m.mu.stats = MemtableStats{}
	m.mu.scnRange = SCNRange{}
}
