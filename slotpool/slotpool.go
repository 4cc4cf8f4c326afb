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

// Package slotpool implements the lock-free free-list slot allocator of
// §4.3: task descriptors are claimed and returned from a singly linked free
// list threaded through each slot's next_or_id field, the same shape as
// cache/mempool.Malloc/Free's size-classed sync.Pool plus footer-magic
// validation, re-expressed as an explicit CAS-guarded list so the free list
// itself lives in the shared region instead of process-local pool state.
package slotpool

import (
	"github.com/taskarena/corepool/atomics"
	"github.com/taskarena/corepool/errs"
	"github.com/taskarena/corepool/layout"
	"github.com/taskarena/corepool/stats"
)

// Allocate claims a slot from the free list. It retries on CAS contention
// up to layout.MaxCASRetries before giving up with ErrNoFreeSlots.
func Allocate(region []byte, st *stats.Stats) (uint32, error) {
	if !layout.Validate(region) {
		return layout.FreeEnd, errs.ErrNotInitialized
	}
	for i := 0; i < layout.MaxCASRetries; i++ {
		head := atomics.LoadU32(region, layout.OffFreeListHead)
		if head == layout.FreeEnd {
			return layout.FreeEnd, errs.ErrNoFreeSlots
		}

		capacity := layout.Capacity(region)
		nextOff := layout.SlotOffset(capacity, head) + layout.SlotOffNextOrID
		next := atomics.LoadU32(region, nextOff)

		if atomics.CasU32(region, layout.OffFreeListHead, head, next) {
			stateOff := layout.SlotOffset(capacity, head) + layout.SlotOffState
			refOff := layout.SlotOffset(capacity, head) + layout.SlotOffRefcount
			atomics.StoreU32(region, stateOff, layout.SlotAllocated)
			atomics.StoreU32(region, refOff, 1)
			n := atomics.AddU32(region, layout.OffAllocatedCount, 1)
			if st != nil {
				st.RecordAlloc()
				st.RecordPeakAllocated(n)
			}
			return head, nil
		}
		if st != nil {
			st.RecordCasRetry()
		}
	}
	return layout.FreeEnd, errs.ErrNoFreeSlots
}

// Free returns slot to the free list. It is a silent no-op if slot is out
// of bounds or already free, per §7's OutOfRange contract.
func Free(region []byte, st *stats.Stats, slot uint32) {
	if !layout.Validate(region) {
		return
	}
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return
	}
	stateOff := layout.SlotOffset(capacity, slot) + layout.SlotOffState
	if atomics.LoadU32(region, stateOff) == layout.SlotFree {
		return
	}

	nextOff := layout.SlotOffset(capacity, slot) + layout.SlotOffNextOrID
	for i := 0; i < layout.MaxCASRetries; i++ {
		head := atomics.LoadU32(region, layout.OffFreeListHead)
		atomics.StoreU32(region, nextOff, head)
		atomics.StoreU32(region, stateOff, layout.SlotFree)

		if atomics.CasU32(region, layout.OffFreeListHead, head, slot) {
			atomics.SubU32(region, layout.OffAllocatedCount, 1)
			if st != nil {
				st.RecordFree()
			}
			return
		}
		if st != nil {
			st.RecordCasRetry()
		}
	}
}

// IsAllocated reports whether slot's state is ALLOCATED.
func IsAllocated(region []byte, slot uint32) bool {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return false
	}
	stateOff := layout.SlotOffset(capacity, slot) + layout.SlotOffState
	return atomics.LoadU32(region, stateOff) == layout.SlotAllocated
}

// AllocatedCount returns the number of slots currently allocated.
func AllocatedCount(region []byte) uint32 {
	return atomics.LoadU32(region, layout.OffAllocatedCount)
}

// AddRef increments slot's refcount and returns the new value.
func AddRef(region []byte, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	refOff := layout.SlotOffset(capacity, slot) + layout.SlotOffRefcount
	return atomics.AddU32(region, refOff, 1)
}

// Release decrements slot's refcount and returns the new value. If the
// result is 0, the slot is returned to the free list. Calling Release on a
// slot whose refcount is already 0 is a no-op (idempotence, §8.7).
func Release(region []byte, st *stats.Stats, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	refOff := layout.SlotOffset(capacity, slot) + layout.SlotOffRefcount
	if atomics.LoadU32(region, refOff) == 0 {
		return 0
	}
	n := atomics.SubU32(region, refOff, 1)
	if n == 0 {
		Free(region, st, slot)
	}
	return n
}

// SetTaskID stores the opaque task id. The field is next_or_id,
// reinterpreted: while a slot is FREE the same bytes hold the free-list
// link (FreeNext); the two accessors below keep that discriminant explicit
// instead of exposing one bare getter for both meanings, per the spec's
// design note on tagged variants.
func SetTaskID(region []byte, slot uint32, id uint32) {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return
	}
	atomics.StoreU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffNextOrID, id)
}

// GetTaskID reads the opaque task id of an allocated slot.
func GetTaskID(region []byte, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	return atomics.LoadU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffNextOrID)
}

// FreeNext reads the free-list link of a free slot. Do not call on an
// allocated slot; use GetTaskID instead.
func FreeNext(region []byte, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return layout.FreeEnd
	}
	return atomics.LoadU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffNextOrID)
}

func SetPriority(region []byte, slot uint32, priority uint32) {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return
	}
	atomics.StoreU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffPriority, priority)
}

func GetPriority(region []byte, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	return atomics.LoadU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffPriority)
}

func SetTimestamp(region []byte, slot uint32, ts uint64) {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return
	}
	atomics.StoreU64(region, layout.SlotOffset(capacity, slot)+layout.SlotOffTimestamp, ts)
}

func GetTimestamp(region []byte, slot uint32) uint64 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	return atomics.LoadU64(region, layout.SlotOffset(capacity, slot)+layout.SlotOffTimestamp)
}

func SetMethodID(region []byte, slot uint32, methodID uint32) {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return
	}
	atomics.StoreU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffMethodID, methodID)
}

func GetMethodID(region []byte, slot uint32) uint32 {
	capacity := layout.Capacity(region)
	if slot >= capacity {
		return 0
	}
	return atomics.LoadU32(region, layout.SlotOffset(capacity, slot)+layout.SlotOffMethodID)
}
