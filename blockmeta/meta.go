// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockmeta

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/redact"
)

// MacroBlockID identifies a physical macro block. The zero value is invalid.
type MacroBlockID uint64

// Valid returns true if id is not the zero value.
func (id MacroBlockID) Valid() bool { return id != 0 }

func (id MacroBlockID) String() string { return fmt.Sprintf("macro#%d", uint64(id)) }

// SafeFormat implements redact.SafeFormatter.
func (id MacroBlockID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("macro#%d", redact.SafeUint(id))
}

// RowStoreType is the on-disk row format of a block.
type RowStoreType uint8

// The row store types.
const (
	FlatRowStore RowStoreType = iota
	EncodingRowStore
	SelectiveEncodingRowStore
	CSEncodingRowStore
	numRowStoreTypes
)

var rowStoreTypeNames = [...]string{
	FlatRowStore:              "flat",
	EncodingRowStore:          "encoding",
	SelectiveEncodingRowStore: "selective-encoding",
	CSEncodingRowStore:        "cs-encoding",
}

func (t RowStoreType) String() string {
	if t < numRowStoreTypes {
		return rowStoreTypeNames[t]
	}
	return fmt.Sprintf("row-store(%d)", uint8(t))
}

// SafeFormat implements redact.SafeFormatter.
func (t RowStoreType) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(t.String()))
}

// CompressorType identifies the compression algorithm applied to a block.
type CompressorType uint8

// The compressor types.
const (
	NoCompression CompressorType = iota
	LZ4Compression
	SnappyCompression
	ZstdCompression
	ZlibCompression
	numCompressorTypes
)

var compressorTypeNames = [...]string{
	NoCompression:     "none",
	LZ4Compression:    "lz4",
	SnappyCompression: "snappy",
	ZstdCompression:   "zstd",
	ZlibCompression:   "zlib",
}

func (t CompressorType) String() string {
	if t < numCompressorTypes {
		return compressorTypeNames[t]
	}
	return fmt.Sprintf("compressor(%d)", uint8(t))
}

// SafeFormat implements redact.SafeFormatter.
func (t CompressorType) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(t.String()))
}

// Meta describes one already encoded physical data block. A Meta handed to
// Tree.Insert is owned by the tree and must not be modified afterwards.
type Meta struct {
	// EndKey is the largest row key stored in the block.
	EndKey                base.RowKey
	RowCount              int64
	MicroBlockCount       int64
	DataChecksum          uint64
	OccupySize            int64
	OriginalSize          int64
	MaxMergedTransVersion int64
	Compressor            CompressorType
	EncryptID             int64
	MasterKeyID           int64
	MacroID               MacroBlockID
	BlockOffset           int64
	BlockSize             int64
	IsDeleted             bool
	ContainUncommitted    bool
}

// Clone returns a copy of m whose end key may be modified without affecting
// m.
func (m *Meta) Clone() *Meta {
	c := *m
	c.EndKey = m.EndKey.Clone()
	return &c
}

// Valid returns true if m carries an end key and a plausible block location.
func (m *Meta) Valid() bool {
	return m.EndKey.Valid() && !m.EndKey.IsSentinel() && m.MacroID.Valid() &&
		m.BlockSize > 0 && m.BlockOffset >= 0 && m.RowCount >= 0
}

// footprint approximates the memory retained by an entry holding m.
func (m *Meta) footprint() int64 {
	return int64(unsafe.Sizeof(Meta{})) + int64(unsafe.Sizeof(Entry{})) +
		int64(m.EndKey.Len())*int64(unsafe.Sizeof(base.Datum{}))
}

func (m *Meta) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *Meta) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s end=%s rows=%d micro=%d", m.MacroID, m.EndKey.String(),
		redact.Safe(m.RowCount), redact.Safe(m.MicroBlockCount))
}

// Handle pins a physical block against deallocation for as long as a tree
// entry refers to it.
type Handle interface {
	// Valid returns true if the handle pins a block.
	Valid() bool
	// Release unpins the block. It is called exactly once, when the tree
	// holding the handle is destroyed.
	Release()
}
