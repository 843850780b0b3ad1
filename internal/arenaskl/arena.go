/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arenaskl

import (
	"math"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Arena is a growable allocator for skiplist nodes. Memory is handed out from
// fixed size blocks that are never moved or freed individually, so an offset
// returned by alloc remains valid until Reset. Offsets are global across
// blocks and offset 0 is reserved as the nil offset.
//
// Allocation is serialized by a mutex. Resolving an offset to a pointer is
// lock-free.
type Arena struct {
	blockShift uint32
	blockMask  uint32

	mu struct {
		sync.Mutex
		// next is the global offset of the first unallocated byte.
		next uint64
	}
	// blocks is replaced, never modified in place, when the arena grows.
	blocks atomic.Pointer[[]*arenaBlock]
	// allocated mirrors mu.next for lock-free reads.
	allocated atomic.Uint64
}

type arenaBlock struct {
	buf []byte
}

const (
	nodeAlignment = 4
	// MinBlockSize is the smallest block size an arena will use.
	MinBlockSize = 1 << 10
	// DefaultBlockSize is the block size used when none is specified.
	DefaultBlockSize = 32 << 10
)

// ErrArenaFull indicates that the arena's offset space is exhausted.
var ErrArenaFull = errors.New("allocation failed because arena is full")

// NewArena allocates a new arena whose blocks are blockSize bytes, rounded up
// to a power of two and to at least MinBlockSize. No memory is reserved until
// the first allocation.
func NewArena(blockSize uint32) *Arena {
	if blockSize < MinBlockSize {
		blockSize = MinBlockSize
	}
	if blockSize > 1<<30 {
		blockSize = 1 << 30
	}
	shift := uint32(bits.Len32(blockSize - 1))
	a := &Arena{
		blockShift: shift,
		blockMask:  1<<shift - 1,
	}
	a.Reset()
	return a
}

// BlockSize returns the size of each block of the arena.
func (a *Arena) BlockSize() uint32 {
	return 1 << a.blockShift
}

// Size returns the number of bytes allocated by the arena, including
// alignment padding and the space skipped at the end of full blocks.
func (a *Arena) Size() uint64 {
	return a.allocated.Load()
}

// Capacity returns the number of bytes reserved by the arena's blocks.
func (a *Arena) Capacity() uint64 {
	return uint64(len(*a.blocks.Load())) << a.blockShift
}

// Reset releases every block. Offsets handed out before Reset must not be
// resolved afterwards, so the caller must guarantee there are no concurrent
// readers.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	empty := make([]*arenaBlock, 0)
	a.blocks.Store(&empty)
	// Don't store data at position 0 in order to reserve offset=0 as a kind
	// of nil pointer.
	a.mu.next = 1
	a.allocated.Store(1)
}

func (a *Arena) alloc(size uint32) (uint32, error) {
	blockSize := uint64(1) << a.blockShift
	if uint64(size) > blockSize {
		return 0, errors.AssertionFailedf("allocation of %d bytes exceeds block size %d", size, blockSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	offset := (a.mu.next + nodeAlignment - 1) &^ (nodeAlignment - 1)
	// Allocations never straddle blocks.
	if offset>>a.blockShift != (offset+uint64(size)-1)>>a.blockShift {
		offset = (offset>>a.blockShift + 1) << a.blockShift
	}
	end := offset + uint64(size)
	if end > math.MaxUint32 {
		return 0, ErrArenaFull
	}
	blocks := *a.blocks.Load()
	if need := int((end - 1) >> a.blockShift); need >= len(blocks) {
		grown := make([]*arenaBlock, need+1)
		copy(grown, blocks)
		for i := len(blocks); i <= need; i++ {
			grown[i] = &arenaBlock{buf: make([]byte, blockSize)}
		}
		a.blocks.Store(&grown)
	}
	a.mu.next = end
	a.allocated.Store(end)
	return uint32(offset), nil
}

func (a *Arena) getPointer(offset uint32) unsafe.Pointer {
	if offset == 0 {
		return nil
	}
	b := (*a.blocks.Load())[offset>>a.blockShift]
	return unsafe.Pointer(&b.buf[offset&a.blockMask])
}
