// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"fmt"

	"github.com/cockroachdb/directload/blockmeta"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/redact"
)

// SCN is a position in a log stream. Re-exported from internal/base.
type SCN = base.SCN

// Special SCN values.
const (
	SCNInvalid = base.SCNInvalid
	SCNMin     = base.SCNMin
	SCNMax     = base.SCNMax
)

// LSID identifies a log stream. Positive values are valid.
type LSID int64

// Valid returns true if id can identify a log stream.
func (id LSID) Valid() bool { return id > 0 }

// TabletID identifies a tablet. Zero is invalid.
type TabletID uint64

// Valid returns true if id can identify a tablet.
func (id TabletID) Valid() bool { return id != 0 }

// ContainerKey identifies a Container: a tablet within a log stream, loaded
// under a load epoch.
type ContainerKey struct {
	LSID     LSID
	TabletID TabletID
	// LoadEpoch is the start SCN of the load that owns the container.
	LoadEpoch SCN
}

// Valid returns true if every component of k is well formed.
func (k ContainerKey) Valid() bool {
	return k.LSID.Valid() && k.TabletID.Valid() && k.LoadEpoch.IsValidAndNotMin()
}

func (k ContainerKey) String() string {
	return redact.StringWithoutMarkers(k)
}

// SafeFormat implements redact.SafeFormatter.
func (k ContainerKey) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("ls=%d tablet=%d epoch=%s", redact.Safe(int64(k.LSID)), redact.Safe(uint64(k.TabletID)), k.LoadEpoch)
}

// RowStoreGroup is the GroupID of blocks written for a row store table.
const RowStoreGroup int64 = -1

// TableKey identifies the output table a memtable accumulates blocks for.
type TableKey struct {
	TabletID TabletID
	// GroupID is the column group index of a columnar table, or
	// RowStoreGroup.
	GroupID int64
	// SnapshotVersion is the commit version the loaded data is visible at.
	SnapshotVersion int64
}

// Valid returns true if k is well formed.
func (k TableKey) Valid() bool {
	return k.TabletID.Valid() && k.GroupID >= RowStoreGroup && k.SnapshotVersion > 0
}

func (k TableKey) String() string {
	if k.GroupID == RowStoreGroup {
		return fmt.Sprintf("tablet=%d row-store snapshot=%d", k.TabletID, k.SnapshotVersion)
	}
	return fmt.Sprintf("tablet=%d cg=%d snapshot=%d", k.TabletID, k.GroupID, k.SnapshotVersion)
}

// ColumnGroupType describes which columns a column group stores.
type ColumnGroupType uint8

const (
	// ColumnGroupNormal stores a subset of the columns and no row key.
	ColumnGroupNormal ColumnGroupType = iota
	// ColumnGroupRowkey stores exactly the row key columns.
	ColumnGroupRowkey
	// ColumnGroupAll stores every column.
	ColumnGroupAll
)

func (t ColumnGroupType) String() string {
	switch t {
	case ColumnGroupNormal:
		return "normal"
	case ColumnGroupRowkey:
		return "rowkey"
	case ColumnGroupAll:
		return "all"
	default:
		return fmt.Sprintf("ColumnGroupType(%d)", uint8(t))
	}
}

// ColumnGroup describes one column group of a columnar table.
type ColumnGroup struct {
	Type        ColumnGroupType
	ColumnCount int
}

// StorageSchema is the storage layout of a tablet.
type StorageSchema struct {
	RowKeyColumnCount int
	StoredColumnCount int
	// ColumnGroups is empty for a row store table.
	ColumnGroups  []ColumnGroup
	RowStoreType  blockmeta.RowStoreType
	Compressor    blockmeta.CompressorType
	MasterKeyID   int64
	EncryptID     int64
	EncryptKey    []byte
	SchemaVersion int64
}

// IsColumnar returns true if the table is stored as column groups.
func (s *StorageSchema) IsColumnar() bool {
	return len(s.ColumnGroups) > 0
}

// Block is the unit of ingestion: the metadata of one physical block
// produced by a load, together with a handle pinning the block.
type Block struct {
	Handle blockmeta.Handle
	Meta   *blockmeta.Meta
	// SCN is the log position at which the block was written.
	SCN SCN
	// LoadEpoch is the start SCN of the load that wrote the block.
	LoadEpoch SCN
	// GroupID is the column group the block belongs to, or RowStoreGroup.
	GroupID int64
	// EndRowID is the offset of the block's last row in the combined
	// output. It keys blocks of normal column groups, which carry no row key.
	EndRowID int64
	// CanFreeze is false for blocks whose writer cannot tolerate the
	// container freezing underneath it.
	CanFreeze bool
}

// Valid returns true if b is well formed.
func (b *Block) Valid() bool {
	return b != nil && b.Handle != nil && b.Handle.Valid() && b.Meta != nil && b.Meta.Valid() &&
		b.SCN.IsValidAndNotMin() && b.LoadEpoch.IsValidAndNotMin() && b.GroupID >= RowStoreGroup
}

// MergeParam describes the merge of a frozen container into a durable
// table.
type MergeParam struct {
	Key             ContainerKey
	SnapshotVersion int64
	FormatVersion   uint64
}

// SafeFormat implements redact.SafeFormatter.
func (p MergeParam) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s snapshot=%d format=%d", p.Key, redact.Safe(p.SnapshotVersion), redact.Safe(p.FormatVersion))
}

func (p MergeParam) String() string {
	return redact.StringWithoutMarkers(p)
}

// Tablet is the part of a tablet a Container consults while ingesting.
type Tablet interface {
	TabletID() TabletID
	// StorageSchema returns the storage layout of the tablet.
	StorageSchema() (*StorageSchema, error)
}

// LogStreamService reports log stream progress.
type LogStreamService interface {
	// MaxDecidedSCN returns the largest SCN below which the log stream has
	// decided every entry. It returns an error marked with ErrStateMismatch if
	// the log stream is not in a state to answer.
	MaxDecidedSCN(ls LSID) (SCN, error)
}

// TenantConfig reports the resources allotted to the tenant.
type TenantConfig interface {
	// LogDiskSize returns the size in bytes of the tenant's log disk.
	LogDiskSize() (int64, error)
}

// Scheduler accepts background work on behalf of a Container. Its methods
// must not block.
type Scheduler interface {
	// ScheduleFreeze requests that the container identified by p be frozen.
	ScheduleFreeze(p MergeParam) error
	// ScheduleMerge requests that the container identified by p be merged
	// once frozen.
	ScheduleMerge(p MergeParam) error
}
