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
	"sync/atomic"
	"unsafe"
)

type links struct {
	nextOffset atomic.Uint32
	prevOffset atomic.Uint32
}

func (l *links) init(prevOffset, nextOffset uint32) {
	l.nextOffset.Store(nextOffset)
	l.prevOffset.Store(prevOffset)
}

type node struct {
	// Immutable fields, so no need to lock to access them.
	offset uint32
	entry  uint32
	height uint32

	// Most nodes do not need to use the full height of the tower, since the
	// probability of each successive level decreases exponentially. Because
	// these elements are never accessed, they do not need to be allocated.
	// Therefore, when a node is allocated in the arena, its memory footprint
	// is deliberately truncated to not include unneeded tower elements.
	//
	// All accesses to elements should use CAS operations, with no need to lock.
	tower [maxHeight]links
}

const (
	maxNodeSize = uint32(unsafe.Sizeof(node{}))
	linksSize   = uint32(unsafe.Sizeof(links{}))
)

func newNode(arena *Arena, height uint32, entry uint32) (*node, error) {
	if height < 1 || height > maxHeight {
		panic("height cannot be less than one or greater than the max height")
	}

	// Compute the amount of the tower that will never be used, since the height
	// is less than maxHeight.
	unusedSize := (maxHeight - height) * linksSize
	offset, err := arena.alloc(maxNodeSize - unusedSize)
	if err != nil {
		return nil, err
	}

	nd := (*node)(arena.getPointer(offset))
	nd.offset = offset
	nd.entry = entry
	nd.height = height
	return nd, nil
}

func (n *node) nextOffset(h int) uint32 {
	return n.tower[h].nextOffset.Load()
}

func (n *node) prevOffset(h int) uint32 {
	return n.tower[h].prevOffset.Load()
}

func (n *node) casNextOffset(h int, old, val uint32) bool {
	return n.tower[h].nextOffset.CompareAndSwap(old, val)
}

func (n *node) casPrevOffset(h int, old, val uint32) bool {
	return n.tower[h].prevOffset.CompareAndSwap(old, val)
}
