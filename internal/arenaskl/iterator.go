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

type splice struct {
	prev *node
	next *node
}

func (s *splice) init(prev, next *node) {
	s.prev = prev
	s.next = next
}

// Iterator is an iterator over the skiplist object. Use Skiplist.NewIter
// to construct an iterator. The current state of the iterator can be cloned by
// simply value copying the struct. All iterator methods are thread-safe.
//
// Every positioning method returns true if the iterator is pointing at a
// valid entry and false otherwise.
type Iterator[T any] struct {
	list *Skiplist[T]
	nd   *node
}

// Valid returns true iff the iterator is positioned at a valid entry.
func (it *Iterator[T]) Valid() bool {
	return it.nd != nil && it.nd != it.list.head && it.nd != it.list.tail
}

// Entry returns the entry at the current position. The iterator must be
// valid.
func (it *Iterator[T]) Entry() T {
	return it.list.entry(it.nd)
}

// SeekGE moves the iterator to the first entry that is greater than or equal
// to v.
func (it *Iterator[T]) SeekGE(v T) bool {
	_, it.nd = it.seekForBaseSplice(v, false /* inclusive */)
	return it.nd != it.list.tail
}

// SeekGT moves the iterator to the first entry that is greater than v.
func (it *Iterator[T]) SeekGT(v T) bool {
	_, it.nd = it.seekForBaseSplice(v, true /* inclusive */)
	return it.nd != it.list.tail
}

// SeekLT moves the iterator to the last entry that is less than v.
func (it *Iterator[T]) SeekLT(v T) bool {
	it.nd, _ = it.seekForBaseSplice(v, false /* inclusive */)
	return it.nd != it.list.head
}

// SeekLE moves the iterator to the last entry that is less than or equal to
// v.
func (it *Iterator[T]) SeekLE(v T) bool {
	it.nd, _ = it.seekForBaseSplice(v, true /* inclusive */)
	return it.nd != it.list.head
}

// First seeks position at the first entry in list.
func (it *Iterator[T]) First() bool {
	it.nd = it.list.getNext(it.list.head, 0)
	return it.nd != it.list.tail
}

// Last seeks position at the last entry in list.
func (it *Iterator[T]) Last() bool {
	it.nd = it.list.getPrev(it.list.tail, 0)
	return it.nd != it.list.head
}

// Next advances to the next position. Calling Next on an exhausted iterator
// leaves it exhausted.
func (it *Iterator[T]) Next() bool {
	if it.nd == it.list.tail {
		return false
	}
	it.nd = it.list.getNext(it.nd, 0)
	return it.nd != it.list.tail
}

// Prev moves to the previous position. Calling Prev on an iterator positioned
// before the first entry leaves it there.
func (it *Iterator[T]) Prev() bool {
	if it.nd == it.list.head {
		return false
	}
	it.nd = it.list.getPrev(it.nd, 0)
	return it.nd != it.list.head
}

// seekForBaseSplice returns the level 0 splice around v. If inclusive is
// false, next is the first node >= v; otherwise next is the first node > v.
func (it *Iterator[T]) seekForBaseSplice(v T, inclusive bool) (prev, next *node) {
	list := it.list
	prev = list.head
	for level := int(list.Height() - 1); level >= 0; level-- {
		prevLevelNext := next
		for {
			// Assume prev.key < key (or <= key when inclusive).
			next = list.getNext(prev, level)

			// Nodes between the splice of the level above and prevLevelNext
			// that reach this level are the only ones left to compare; if next
			// is prevLevelNext there are none.
			if next == prevLevelNext {
				break
			}
			if next == list.tail {
				// Tail node, so done.
				break
			}

			c := list.cmp(v, list.entry(next))
			if c < 0 || (c == 0 && !inclusive) {
				break
			}
			// Keep moving right on this level.
			prev = next
		}
	}

	return prev, next
}
