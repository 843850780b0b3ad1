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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaBlockSize(t *testing.T) {
	require.Equal(t, uint32(MinBlockSize), NewArena(1).BlockSize())
	require.Equal(t, uint32(4<<10), NewArena(3000).BlockSize())
	require.Equal(t, uint32(8<<10), NewArena(8<<10).BlockSize())
}

func TestArenaGrowth(t *testing.T) {
	a := NewArena(MinBlockSize)
	require.Equal(t, uint64(0), a.Capacity())
	require.Equal(t, uint64(1), a.Size())

	// The first allocation is aligned past the reserved nil offset.
	offset, err := a.alloc(100)
	require.NoError(t, err)
	require.Equal(t, uint32(4), offset)
	require.Equal(t, uint64(MinBlockSize), a.Capacity())

	// An allocation that does not fit in the remainder of the block starts
	// the next block.
	offset, err = a.alloc(MinBlockSize - 50)
	require.NoError(t, err)
	require.Equal(t, uint32(MinBlockSize), offset)
	require.Equal(t, uint64(2*MinBlockSize), a.Capacity())

	// Pointers into earlier blocks remain valid after growth.
	p := (*uint32)(a.getPointer(4))
	*p = 42
	for i := 0; i < 10; i++ {
		_, err = a.alloc(MinBlockSize)
		require.NoError(t, err)
	}
	require.Equal(t, uint32(42), *(*uint32)(a.getPointer(4)))

	_, err = a.alloc(MinBlockSize + 1)
	require.Error(t, err)

	a.Reset()
	require.Equal(t, uint64(0), a.Capacity())
	require.Equal(t, uint64(1), a.Size())
	require.Nil(t, a.getPointer(0))
}

// TestNodeBlockEnd tests allocating nodes at the boundary of an arena block.
// Under the race detector Go performs pointer alignment checks that would
// detect a node straddling two blocks.
func TestNodeBlockEnd(t *testing.T) {
	a := NewArena(MinBlockSize)
	var last uint32
	for i := 0; i < 100; i++ {
		nd, err := newNode(a, maxHeight, uint32(i))
		require.NoError(t, err)
		require.Equal(t, nd.offset>>a.blockShift, (nd.offset+maxNodeSize-1)>>a.blockShift)
		require.Greater(t, nd.offset, last)
		last = nd.offset
	}
}
