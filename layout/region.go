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

// Package layout defines the fixed byte layout of the scheduling region:
// a 64-byte header, a ring entry array, a slot (task descriptor) array, and
// a heap array, carved out of one contiguous []byte the same way
// unsafex/malloc.BitmapAllocator carves a bitmap and block area out of one
// arena, and the same way internal/iouring.NewIoUring carves SQ/CQ fields
// out of one mmap'd region.
package layout

import (
	"encoding/binary"
	"math/bits"

	"github.com/taskarena/corepool/atomics"
	"github.com/taskarena/corepool/errs"
)

// Field sizes, fixed by the wire layout.
const (
	HeaderSize    = 64
	RingEntrySize = 8
	SlotSize      = 64
	HeapEntrySize = 8

	// headerReservedOffset and headerReservedSize bound the 4 trailing
	// header bytes after pq_base_offset (offset 56, size 4) that the
	// layout reserves for future header fields without a version bump.
	headerReservedOffset = OffPQBaseOffset + 4
	headerReservedSize   = HeaderSize - headerReservedOffset
)

// Header field offsets, exactly as specified.
const (
	OffMagic         = 0
	OffVersion       = 4
	OffHead          = 8
	OffTail          = 16
	OffCapacity      = 24
	OffMask          = 28
	OffAllocatedCount = 32
	OffSlotsBase     = 40
	OffFreeListHead  = 48
	OffPQSize        = 52
	OffPQBaseOffset  = 56
)

// Magic, version and sentinel constants.
const (
	Magic   uint32 = 0x57504F4C
	Version uint32 = 1

	// FreeEnd marks "no free slot" in the free list and "no valid slot" in
	// slot-index contexts.
	FreeEnd uint32 = 0xFFFFFFFF

	// NoSlot marks "heap is empty" for pqueue.Pop.
	NoSlot uint32 = 0xFFFFFFFF

	// EntryEmpty marks an empty ring entry.
	EntryEmpty uint64 = 0

	// MaxCASRetries bounds every bounded-retry loop in the core.
	MaxCASRetries = 1000
)

// Slot descriptor field offsets, relative to the start of a slot.
const (
	SlotOffState     = 0
	SlotOffNextOrID  = 4
	SlotOffPriority  = 8
	SlotOffTimestamp = 16
	SlotOffMethodID  = 24
	SlotOffRefcount  = 28
)

// Slot states.
const (
	SlotFree      uint32 = 0
	SlotAllocated uint32 = 1
)

// NextPow2 rounds n up to the next power of two, per §4.1: nextPow2(n) = 1
// for n <= 1, otherwise the smallest power of two >= n.
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// ComputeSize rounds requestedCapacity up to a power of two and returns the
// capacity actually used and the number of bytes the region must hold.
func ComputeSize(requestedCapacity uint32) (capacity uint32, bytes uint64) {
	capacity = NextPow2(requestedCapacity)
	bytes = uint64(HeaderSize) + uint64(capacity)*uint64(RingEntrySize) +
		uint64(capacity)*uint64(SlotSize) + uint64(capacity)*uint64(HeapEntrySize)
	return capacity, bytes
}

// RingBase returns the byte offset of the ring entry array: immediately
// after the header.
func RingBase() uint32 {
	return HeaderSize
}

// SlotsBase returns the byte offset of the slot array for a region of the
// given capacity.
func SlotsBase(capacity uint32) uint32 {
	return RingBase() + capacity*RingEntrySize
}

// PQBase returns the byte offset of the heap array for a region of the
// given capacity.
func PQBase(capacity uint32) uint32 {
	return SlotsBase(capacity) + capacity*SlotSize
}

// SlotOffset returns the byte offset of slot i's descriptor.
func SlotOffset(capacity, i uint32) uint32 {
	return SlotsBase(capacity) + i*SlotSize
}

// RingEntryOffset returns the byte offset of ring entry i.
func RingEntryOffset(i uint32) uint32 {
	return RingBase() + i*RingEntrySize
}

// PQEntryOffset returns the byte offset of heap entry i, given the cached
// heap base offset read from the header.
func PQEntryOffset(pqBase, i uint32) uint32 {
	return pqBase + i*HeapEntrySize
}

// Validate returns true iff the region's magic and version match what Init
// writes and the reserved header trailer is still zero. ring.Push/Pop,
// pqueue.Push/Pop, slotpool.Allocate/Free and core.Attach begin with this
// check; the other accessors (sizes, peeks, refcounts, descriptor getters
// and setters) do not.
func Validate(region []byte) bool {
	if len(region) < HeaderSize {
		return false
	}
	if atomics.LoadU32(region, OffMagic) != Magic {
		return false
	}
	if binary.LittleEndian.Uint32(region[OffVersion:]) != Version {
		return false
	}
	for _, b := range region[headerReservedOffset : headerReservedOffset+headerReservedSize] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Init writes the header, zeroes the ring and heap arrays, and chains the
// free list 0 -> 1 -> ... -> capacity-1 -> FreeEnd. It fails without
// modifying any field if the region is already initialized.
func Init(region []byte, requestedCapacity uint32) error {
	capacity, needed := ComputeSize(requestedCapacity)
	if uint64(len(region)) < needed {
		return errs.ErrOutOfRange
	}

	// Observe a prior init via an acquire load on magic before writing
	// anything, per §4.1's release/acquire pairing requirement.
	if atomics.LoadU32(region, OffMagic) == Magic {
		return errs.ErrAlreadyInitialized
	}

	for i := range region[:HeaderSize] {
		region[i] = 0
	}

	slotsBase := SlotsBase(capacity)
	pqBase := PQBase(capacity)

	binary.LittleEndian.PutUint32(region[OffVersion:], Version)
	atomics.StoreU64(region, OffHead, 0)
	atomics.StoreU64(region, OffTail, 0)
	atomics.StoreU32(region, OffCapacity, capacity)
	atomics.StoreU32(region, OffMask, capacity-1)
	atomics.StoreU32(region, OffAllocatedCount, 0)
	atomics.StoreU32(region, OffSlotsBase, slotsBase)
	atomics.StoreU32(region, OffFreeListHead, 0)
	atomics.StoreU32(region, OffPQSize, 0)
	atomics.StoreU32(region, OffPQBaseOffset, pqBase)

	ringArea := region[RingBase():slotsBase]
	for i := range ringArea {
		ringArea[i] = 0
	}
	heapArea := region[pqBase : pqBase+capacity*HeapEntrySize]
	for i := range heapArea {
		heapArea[i] = 0
	}

	slotArea := region[slotsBase:pqBase]
	for i := range slotArea {
		slotArea[i] = 0
	}
	for i := uint32(0); i < capacity; i++ {
		off := SlotOffset(capacity, i)
		next := i + 1
		if next == capacity {
			next = FreeEnd
		}
		binary.LittleEndian.PutUint32(region[off+SlotOffNextOrID:], next)
	}

	// Publish the magic last: this is the release that pairs with the
	// acquire load any Validate/Init caller performs.
	atomics.StoreU32(region, OffMagic, Magic)
	return nil
}

// Capacity reads the region's capacity field.
func Capacity(region []byte) uint32 {
	return atomics.LoadU32(region, OffCapacity)
}

// Mask reads the region's mask field.
func Mask(region []byte) uint32 {
	return atomics.LoadU32(region, OffMask)
}

// PQBaseOffset reads the cached heap base offset from the header.
func PQBaseOffset(region []byte) uint32 {
	return atomics.LoadU32(region, OffPQBaseOffset)
}
