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

/*
Adapted from RocksDB inline skiplist.

Key differences:
- No optimization for sequential inserts (no "prev").
- Custom comparator over arbitrary entries.
- Entries that compare equal are all retained, in arrival order.
- We discard all non-concurrent code.
- We do not support Splices. This simplifies the code a lot.
- No AllocateNode or other pointer arithmetic.
- We combine the findLessThan, findGreaterOrEqual, etc into one function.
*/

/*
Further adapted from Badger: https://github.com/dgraph-io/badger.

Key differences:
- Support for previous pointers - doubly linked lists. Note that it's up to higher
  level code to deal with the intermediate state that occurs during insertion,
  where node A is linked to node B, but node B is not yet linked back to node A.
- Nodes live in a growable arena of fixed size blocks and refer to their
  entry by index into an append-only slab, so entries may hold Go pointers.
*/

package arenaskl

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/directload/internal/invariants"
)

const (
	maxHeight = 20
	pValue    = 1 / math.E

	slabChunkShift = 8
	slabChunkLen   = 1 << slabChunkShift
	slabChunkMask  = slabChunkLen - 1
)

var probabilities [maxHeight]uint32

func init() {
	// Precompute the skiplist probabilities so that only a single random number
	// needs to be generated and so that the optimal pvalue can be used (inverse
	// of Euler's number).
	p := float64(1.0)
	for i := 0; i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

// Skiplist is a fast, concurrent skiplist implementation that supports
// forward and backward iteration. Entries are never removed; the whole list
// is discarded by Reset. Concurrent Adds are permitted and readers never
// observe a partially linked entry in forward iteration.
type Skiplist[T any] struct {
	arena  *Arena
	cmp    func(a, b T) int
	head   *node
	tail   *node
	height atomic.Uint32 // Current height. 1 <= height <= maxHeight. CAS.
	count  atomic.Uint32

	mu struct {
		sync.Mutex
		entries uint32
	}
	// chunks is replaced, never modified in place, when the slab grows.
	chunks atomic.Pointer[[]*[slabChunkLen]T]

	// If set to true by tests, then extra delays are added to make it easier to
	// detect unusual race conditions.
	testing bool
}

// NewSkiplist constructs and initializes a new, empty skiplist. All nodes
// will be allocated from the given arena.
func NewSkiplist[T any](arena *Arena, cmp func(a, b T) int) *Skiplist[T] {
	skl := &Skiplist[T]{}
	skl.Reset(arena, cmp)
	return skl
}

// Reset the skiplist to empty and re-initialize. The arena is reset as well.
func (s *Skiplist[T]) Reset(arena *Arena, cmp func(a, b T) int) {
	arena.Reset()

	// Allocate head and tail nodes.
	head, err := newNode(arena, maxHeight, 0)
	if err != nil {
		panic("arena block size is not large enough to hold the head node")
	}
	tail, err := newNode(arena, maxHeight, 0)
	if err != nil {
		panic("arena block size is not large enough to hold the tail node")
	}

	// Link all head/tail levels together.
	for i := 0; i < maxHeight; i++ {
		head.tower[i].nextOffset.Store(tail.offset)
		tail.tower[i].prevOffset.Store(head.offset)
	}

	s.arena = arena
	s.cmp = cmp
	s.head = head
	s.tail = tail
	s.height.Store(1)
	s.count.Store(0)
	s.mu.Lock()
	s.mu.entries = 0
	s.mu.Unlock()
	empty := make([]*[slabChunkLen]T, 0)
	s.chunks.Store(&empty)
}

// Height returns the height of the highest tower within any of the nodes that
// have ever been allocated as part of this skiplist.
func (s *Skiplist[T]) Height() uint32 { return s.height.Load() }

// Arena returns the arena backing this skiplist.
func (s *Skiplist[T]) Arena() *Arena { return s.arena }

// Size returns the number of bytes that have been allocated from the arena.
func (s *Skiplist[T]) Size() uint64 { return s.arena.Size() }

// Len returns the number of entries that have been fully added.
func (s *Skiplist[T]) Len() int { return int(s.count.Load()) }

// Add inserts v. If the list already contains entries that compare equal to
// v, v is placed after them. If there isn't enough room in the arena, then
// Add returns ErrArenaFull and the list is unchanged.
func (s *Skiplist[T]) Add(v T) error {
	var spl [maxHeight]splice
	s.findSplice(v, &spl)

	if s.testing || invariants.Sometimes(1) {
		// Add delay to make it easier to test race between this thread
		// and another thread that sees the intermediate state between
		// finding the splice and using it.
		runtime.Gosched()
	}

	nd, height, err := s.newNode(v)
	if err != nil {
		return err
	}

	// We always insert from the base level and up. After you add a node in base
	// level, we cannot create a node in the level above because it would have
	// discovered the node in the base level.
	for i := 0; i < int(height); i++ {
		prev := spl[i].prev
		next := spl[i].next

		if prev == nil {
			// New node increased the height of the skiplist, so assume that the
			// new level has not yet been populated.
			if next != nil {
				panic("next is expected to be nil, since prev is nil")
			}

			prev = s.head
			next = s.tail
		}

		// +----------------+     +------------+     +----------------+
		// |      prev      |     |     nd     |     |      next      |
		// | prevNextOffset |---->|            |     |                |
		// |                |<----| prevOffset |     |                |
		// |                |     | nextOffset |---->|                |
		// |                |     |            |<----| nextPrevOffset |
		// +----------------+     +------------+     +----------------+
		//
		// 1. Initialize prevOffset and nextOffset to point to prev and next.
		// 2. CAS prevNextOffset to repoint from next to nd.
		// 3. CAS nextPrevOffset to repoint from prev to nd.
		for {
			prevOffset := prev.offset
			nextOffset := next.offset
			nd.tower[i].init(prevOffset, nextOffset)

			// Check whether next has an updated link to prev. If it does not,
			// that can mean one of two things:
			//   1. The thread that added the next node hasn't yet had a chance
			//      to add the prev link (but will shortly).
			//   2. Another thread has added a new node between prev and next.
			nextPrevOffset := next.prevOffset(i)
			if nextPrevOffset != prevOffset {
				// Determine whether #1 or #2 is true by checking whether prev
				// is still pointing to next. As long as the atomic operations
				// have at least acquire/release semantics (no need for
				// sequential consistency), this works, as it is equivalent to
				// the "publication safety" pattern.
				prevNextOffset := prev.nextOffset(i)
				if prevNextOffset == nextOffset {
					// Ok, case #1 is true, so help the other thread along by
					// updating the next node's prev link.
					next.casPrevOffset(i, nextPrevOffset, prevOffset)
				}
			}

			if prev.casNextOffset(i, nextOffset, nd.offset) {
				// Managed to insert nd between prev and next, so update the next
				// node's prev link and go to the next level.
				if s.testing {
					// Add delay to make it easier to test race between this thread
					// and another thread that sees the intermediate state between
					// setting next and setting prev.
					runtime.Gosched()
				}

				next.casPrevOffset(i, prevOffset, nd.offset)
				break
			}

			// CAS failed. We need to recompute prev and next. It is unlikely to
			// be helpful to try to use a different level as we redo the search,
			// because it is unlikely that lots of nodes are inserted between prev
			// and next.
			prev, next = s.findSpliceForLevel(v, i, prev)
		}
	}

	s.count.Add(1)
	return nil
}

// NewIter returns a new Iterator object. The iterator is unpositioned. Note
// that it is safe for an iterator to be copied by value.
func (s *Skiplist[T]) NewIter() Iterator[T] {
	return Iterator[T]{list: s, nd: s.head}
}

func (s *Skiplist[T]) newNode(v T) (nd *node, height uint32, err error) {
	s.mu.Lock()
	idx := s.mu.entries
	chunks := *s.chunks.Load()
	if int(idx>>slabChunkShift) == len(chunks) {
		grown := make([]*[slabChunkLen]T, len(chunks)+1)
		copy(grown, chunks)
		grown[len(chunks)] = new([slabChunkLen]T)
		s.chunks.Store(&grown)
		chunks = grown
	}
	height = s.randomHeight()
	nd, err = newNode(s.arena, height, idx)
	if err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	// The slot is published to readers by the CAS that links nd.
	chunks[idx>>slabChunkShift][idx&slabChunkMask] = v
	s.mu.entries++
	s.mu.Unlock()

	// Try to increase s.height via CAS.
	listHeight := s.Height()
	for height > listHeight {
		if s.height.CompareAndSwap(listHeight, height) {
			// Successfully increased skiplist.height.
			break
		}

		listHeight = s.Height()
	}

	return nd, height, nil
}

func (s *Skiplist[T]) randomHeight() uint32 {
	rnd := rand.Uint32()
	h := uint32(1)
	for h < maxHeight && rnd <= probabilities[h] {
		h++
	}

	return h
}

func (s *Skiplist[T]) entry(nd *node) T {
	chunks := *s.chunks.Load()
	return chunks[nd.entry>>slabChunkShift][nd.entry&slabChunkMask]
}

func (s *Skiplist[T]) findSplice(v T, spl *[maxHeight]splice) {
	var prev, next *node

	level := int(s.Height() - 1)
	prev = s.head

	for {
		prev, next = s.findSpliceForLevel(v, level, prev)
		spl[level].init(prev, next)

		if level == 0 {
			break
		}

		level--
	}
}

// findSpliceForLevel returns the pair of nodes between which v belongs on the
// given level, placing v after every node that compares equal to it.
func (s *Skiplist[T]) findSpliceForLevel(v T, level int, start *node) (prev, next *node) {
	prev = start

	for {
		// Assume prev.key <= key.
		next = s.getNext(prev, level)
		if next == s.tail {
			// Tail node, so done.
			break
		}

		if s.cmp(v, s.entry(next)) < 0 {
			// We are done for this level, since prev.key <= key < next.key.
			break
		}

		// Keep moving right on this level.
		prev = next
	}

	return prev, next
}

func (s *Skiplist[T]) getNext(nd *node, h int) *node {
	return (*node)(s.arena.getPointer(nd.nextOffset(h)))
}

func (s *Skiplist[T]) getPrev(nd *node, h int) *node {
	return (*node)(s.arena.getPointer(nd.prevOffset(h)))
}
