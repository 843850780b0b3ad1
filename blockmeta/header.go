// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockmeta

// IndexRowHeaderV1 is the only index row header version.
const IndexRowHeaderV1 uint8 = 1

// MaxEncryptKeyLen is the maximum length of an encryption key carried in an
// index row header.
const MaxEncryptKeyLen = 16

// IndexRowHeader holds the fields a reader of a persisted index block expects
// next to every index row. Each tree entry carries one so that the tree can
// be read as if it were such a block.
type IndexRowHeader struct {
	Version            uint8
	RowStoreType       RowStoreType
	Compressor         CompressorType
	IsDataIndex        bool
	IsDataBlock        bool
	IsLeafBlock        bool
	IsMacroNode        bool
	IsMajorNode        bool
	IsDeleted          bool
	ContainUncommitted bool
	MacroID            MacroBlockID
	BlockOffset        int64
	BlockSize          int64
	MacroBlockCount    int64
	MicroBlockCount    int64
	MasterKeyID        int64
	EncryptID          int64
	EncryptKey         []byte
	SchemaVersion      int64
	RowCount           int64
}

// makeIndexRowHeader builds the header of a leaf index row pointing at the
// macro block described by m.
func makeIndexRowHeader(desc *TreeDesc, m *Meta) IndexRowHeader {
	return IndexRowHeader{
		Version:            IndexRowHeaderV1,
		RowStoreType:       desc.RowStoreType,
		Compressor:         desc.Compressor,
		IsDataIndex:        true,
		IsDataBlock:        false,
		IsLeafBlock:        true,
		IsMacroNode:        true,
		IsMajorNode:        true,
		IsDeleted:          m.IsDeleted,
		ContainUncommitted: m.ContainUncommitted,
		MacroID:            m.MacroID,
		BlockOffset:        m.BlockOffset,
		BlockSize:          m.BlockSize,
		MacroBlockCount:    1,
		MicroBlockCount:    m.MicroBlockCount,
		MasterKeyID:        desc.MasterKeyID,
		EncryptID:          desc.EncryptID,
		EncryptKey:         desc.EncryptKey,
		SchemaVersion:      desc.SchemaVersion,
		RowCount:           m.RowCount,
	}
}

// Valid returns true if the header is internally consistent.
func (h *IndexRowHeader) Valid() bool {
	switch {
	case h.Version != IndexRowHeaderV1:
		return false
	case h.RowStoreType >= numRowStoreTypes || h.Compressor >= numCompressorTypes:
		return false
	case h.IsDataIndex && h.IsDataBlock:
		return false
	case h.IsMacroNode && (!h.MacroID.Valid() || h.MacroBlockCount <= 0):
		return false
	case h.BlockOffset < 0 || h.BlockSize <= 0:
		return false
	case h.IsLeafBlock && h.MicroBlockCount <= 0:
		return false
	case h.RowCount < 0 || h.SchemaVersion < 0:
		return false
	case len(h.EncryptKey) > MaxEncryptKeyLen:
		return false
	}
	return true
}
