/*
 * Copyright 2024 CloudWeGo Authors
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

// Package pqueue implements the concurrent binary heap of §4.5: a shared
// min-heap over packed (inverted-priority, slot) entries, linearized on a
// CAS over pq_size the same way the disruptor-style sequencers in the
// broader ring-buffer pack (e.g. a Sequencer.Next claiming a cursor with a
// load-then-CAS retry loop) linearize producer claims on a cursor, applied
// here to claiming a heap index instead of a ring position.
package pqueue

import (
	"github.com/taskarena/corepool/atomics"
	"github.com/taskarena/corepool/errs"
	"github.com/taskarena/corepool/layout"
	"github.com/taskarena/corepool/stats"
)

// packEntry packs (slot, priority) with the priority inverted in the high
// 32 bits, so the heap's natural small-value-first order yields the
// largest original priority first.
func packEntry(slot, priority uint32) uint64 {
	return uint64(^priority)<<32 | uint64(slot)
}

func unpackSlot(entry uint64) uint32 {
	return uint32(entry)
}

func unpackPriority(entry uint64) uint32 {
	return ^uint32(entry >> 32)
}

func entryOffset(pqBase, i uint32) uint32 {
	return layout.PQEntryOffset(pqBase, i)
}

// Push inserts (slot, priority), claiming an index via a CAS on pq_size
// and then sifting it up into place.
func Push(region []byte, st *stats.Stats, slot, priority uint32) error {
	if !layout.Validate(region) {
		return errs.ErrNotInitialized
	}
	capacity := layout.Capacity(region)
	pqBase := layout.PQBaseOffset(region)

	for i := 0; i < layout.MaxCASRetries; i++ {
		n := atomics.LoadU32(region, layout.OffPQSize)
		if n == capacity {
			if st != nil {
				st.RecordPushFailure()
			}
			return errs.ErrFull
		}
		if atomics.CasU32(region, layout.OffPQSize, n, n+1) {
			atomics.StoreU64(region, entryOffset(pqBase, n), packEntry(slot, priority))
			siftUp(region, pqBase, n)
			if st != nil {
				st.RecordPush()
				st.RecordPeakSize(n + 1)
			}
			return nil
		}
		if st != nil {
			st.RecordCasRetry()
		}
	}
	if st != nil {
		st.RecordPushFailure()
	}
	return errs.ErrFull
}

// Pop removes and returns the highest-priority slot, claiming the
// size decrement via CAS, moving the last entry to the root, and sifting
// it down into place.
func Pop(region []byte, st *stats.Stats) (uint32, error) {
	if !layout.Validate(region) {
		return layout.NoSlot, errs.ErrNotInitialized
	}
	pqBase := layout.PQBaseOffset(region)

	for i := 0; i < layout.MaxCASRetries; i++ {
		n := atomics.LoadU32(region, layout.OffPQSize)
		if n == 0 {
			if st != nil {
				st.RecordPopFailure()
			}
			return layout.NoSlot, errs.ErrEmpty
		}
		if atomics.CasU32(region, layout.OffPQSize, n, n-1) {
			rootOff := entryOffset(pqBase, 0)
			rootEntry := atomics.LoadU64(region, rootOff)
			lastOff := entryOffset(pqBase, n-1)
			lastEntry := atomics.LoadU64(region, lastOff)
			atomics.StoreU64(region, rootOff, lastEntry)
			atomics.StoreU64(region, lastOff, 0)
			siftDown(region, pqBase, 0, n-1)
			if st != nil {
				st.RecordPop()
			}
			return unpackSlot(rootEntry), nil
		}
		if st != nil {
			st.RecordCasRetry()
		}
	}
	if st != nil {
		st.RecordPopFailure()
	}
	return layout.NoSlot, errs.ErrEmpty
}

// Peek returns the slot at the root without removing it. A peek racing
// with an in-flight Push/Pop's sift may observe a transiently out-of-order
// root; the contract only guarantees ordering once the sift completes
// (§4.5, Open Question).
func Peek(region []byte) (uint32, error) {
	pqBase := layout.PQBaseOffset(region)
	if atomics.LoadU32(region, layout.OffPQSize) == 0 {
		return layout.NoSlot, errs.ErrEmpty
	}
	entry := atomics.LoadU64(region, entryOffset(pqBase, 0))
	return unpackSlot(entry), nil
}

// PeekPriority returns the priority at the root without removing it.
func PeekPriority(region []byte) (uint32, error) {
	pqBase := layout.PQBaseOffset(region)
	if atomics.LoadU32(region, layout.OffPQSize) == 0 {
		return 0, errs.ErrEmpty
	}
	entry := atomics.LoadU64(region, entryOffset(pqBase, 0))
	return unpackPriority(entry), nil
}

// Size returns the current heap size.
func Size(region []byte) uint32 {
	return atomics.LoadU32(region, layout.OffPQSize)
}

// IsEmpty reports whether the heap is empty.
func IsEmpty(region []byte) bool {
	return Size(region) == 0
}

// IsFull reports whether the heap is at capacity.
func IsFull(region []byte) bool {
	return Size(region) >= layout.Capacity(region)
}

// Clear resets the heap to empty. It is NOT concurrency-safe; intended for
// shutdown/tests.
func Clear(region []byte) {
	pqBase := layout.PQBaseOffset(region)
	capacity := layout.Capacity(region)
	atomics.StoreU32(region, layout.OffPQSize, 0)
	for i := uint32(0); i < capacity; i++ {
		atomics.StoreU64(region, entryOffset(pqBase, i), 0)
	}
}

// siftUp restores heap order after inserting at index i. A racing reader
// may briefly observe an inverted pair between the two stores of a swap;
// the next sift step corrects it, per §4.5.
func siftUp(region []byte, pqBase, i uint32) {
	for i > 0 {
		parent := (i - 1) / 2
		parentOff := entryOffset(pqBase, parent)
		curOff := entryOffset(pqBase, i)
		parentEntry := atomics.LoadU64(region, parentOff)
		curEntry := atomics.LoadU64(region, curOff)
		if parentEntry <= curEntry {
			return
		}
		atomics.StoreU64(region, parentOff, curEntry)
		atomics.StoreU64(region, curOff, parentEntry)
		i = parent
	}
}

// siftDown restores heap order after replacing the root, over the first n
// live entries.
func siftDown(region []byte, pqBase, i, n uint32) {
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i
		smallestEntry := atomics.LoadU64(region, entryOffset(pqBase, i))

		if left < n {
			if e := atomics.LoadU64(region, entryOffset(pqBase, left)); e < smallestEntry {
				smallest = left
				smallestEntry = e
			}
		}
		if right < n {
			if e := atomics.LoadU64(region, entryOffset(pqBase, right)); e < smallestEntry {
				smallest = right
				smallestEntry = e
			}
		}
		if smallest == i {
			return
		}
		iOff := entryOffset(pqBase, i)
		sOff := entryOffset(pqBase, smallest)
		iEntry := atomics.LoadU64(region, iOff)
		atomics.StoreU64(region, iOff, smallestEntry)
		atomics.StoreU64(region, sOff, iEntry)
		i = smallest
	}
}
