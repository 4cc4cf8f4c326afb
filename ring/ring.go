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

// Package ring implements the fixed-capacity FIFO of §4.4: a power-of-two
// array of packed (priority, slot) entries indexed by head/tail, the same
// shape as internal/iouring's SubmissionQueue/CompletionQueue (mask-based
// wrap, atomic head/tail, entry-written-before-tail-advanced ordering), but
// generalized from a kernel-backed SQ/CQ pair to the single
// producer-owned/consumer-owned ring the spec describes.
//
// It assumes one enqueuer and one dispatcher, the same single-producer/
// single-consumer contract internal/iouring places on the app side of each
// of its two rings; the zero-entry handshake described below is what
// gives it defensive safety beyond that contract.
package ring

import (
	"github.com/taskarena/corepool/atomics"
	"github.com/taskarena/corepool/errs"
	"github.com/taskarena/corepool/layout"
	"github.com/taskarena/corepool/stats"
)

// PackEntry packs a (slot, priority) pair into the 64-bit wire format: the
// priority occupies the high 32 bits, the slot the low 32 bits.
func PackEntry(slot, priority uint32) uint64 {
	return uint64(priority)<<32 | uint64(slot)
}

// UnpackSlot extracts the slot index from a packed entry.
func UnpackSlot(entry uint64) uint32 {
	return uint32(entry)
}

// UnpackPriority extracts the priority from a packed entry.
func UnpackPriority(entry uint64) uint32 {
	return uint32(entry >> 32)
}

// Push appends (slot, priority) to the ring. It returns ErrFull if the ring
// is at capacity (tail-head >= capacity), or ErrSlotBusy if a consumer has
// not yet cleared the entry at the target index. Both mean "back off" to the
// caller; both are counted by st.RecordPushFailure, and stats does not keep
// a separate count of the ErrSlotBusy case.
func Push(region []byte, st *stats.Stats, slot, priority uint32) error {
	if !layout.Validate(region) {
		return errs.ErrNotInitialized
	}
	capacity := uint64(layout.Capacity(region))
	tail := atomics.LoadU64(region, layout.OffTail)
	head := atomics.LoadU64(region, layout.OffHead)
	if tail-head >= capacity {
		if st != nil {
			st.RecordPushFailure()
		}
		return errs.ErrFull
	}

	mask := uint64(layout.Mask(region))
	wrapped := uint32(tail & mask)
	off := layout.RingEntryOffset(wrapped)

	if atomics.LoadU64(region, off) != layout.EntryEmpty {
		if st != nil {
			st.RecordPushFailure()
		}
		return errs.ErrSlotBusy
	}

	// Write the entry before advancing tail so a consumer that observes
	// the new tail also observes the entry (§4.4).
	atomics.StoreU64(region, off, PackEntry(slot, priority))
	atomics.StoreU64(region, layout.OffTail, tail+1)

	if st != nil {
		st.RecordPush()
		st.RecordPeakSize(uint32(tail + 1 - head))
	}
	return nil
}

// Pop removes and returns the oldest packed entry, or ErrEmpty if the ring
// has nothing to deliver (including the producer-still-writing race where
// head < tail but the entry has not yet become visible).
func Pop(region []byte, st *stats.Stats) (uint64, error) {
	if !layout.Validate(region) {
		return 0, errs.ErrNotInitialized
	}
	head := atomics.LoadU64(region, layout.OffHead)
	tail := atomics.LoadU64(region, layout.OffTail)
	if head >= tail {
		if st != nil {
			st.RecordPopFailure()
		}
		return 0, errs.ErrEmpty
	}

	mask := uint64(layout.Mask(region))
	off := layout.RingEntryOffset(uint32(head & mask))
	entry := atomics.LoadU64(region, off)
	if entry == layout.EntryEmpty {
		if st != nil {
			st.RecordPopFailure()
		}
		return 0, errs.ErrEmpty
	}

	atomics.StoreU64(region, off, layout.EntryEmpty)
	atomics.StoreU64(region, layout.OffHead, head+1)
	if st != nil {
		st.RecordPop()
	}
	return entry, nil
}

// Size returns the number of pending entries.
func Size(region []byte) uint32 {
	tail := atomics.LoadU64(region, layout.OffTail)
	head := atomics.LoadU64(region, layout.OffHead)
	if tail < head {
		return 0
	}
	return uint32(tail - head)
}

// IsEmpty reports whether the ring has no pending entries.
func IsEmpty(region []byte) bool {
	return Size(region) == 0
}

// IsFull reports whether the ring is at capacity.
func IsFull(region []byte) bool {
	return uint64(Size(region)) >= uint64(layout.Capacity(region))
}

// Clear resets the ring to empty. It is NOT concurrency-safe; it is meant
// for shutdown, mirroring internal/iouring.Close's non-concurrent teardown.
func Clear(region []byte) {
	capacity := layout.Capacity(region)
	atomics.StoreU64(region, layout.OffHead, 0)
	atomics.StoreU64(region, layout.OffTail, 0)
	for i := uint32(0); i < capacity; i++ {
		atomics.StoreU64(region, layout.RingEntryOffset(i), layout.EntryEmpty)
	}
}

// Contains reports whether slot currently has a pending entry in the ring.
// It is NOT concurrency-safe; intended for tests.
func Contains(region []byte, slot uint32) bool {
	head := atomics.LoadU64(region, layout.OffHead)
	tail := atomics.LoadU64(region, layout.OffTail)
	mask := uint64(layout.Mask(region))
	for i := head; i < tail; i++ {
		entry := atomics.LoadU64(region, layout.RingEntryOffset(uint32(i&mask)))
		if entry != layout.EntryEmpty && UnpackSlot(entry) == slot {
			return true
		}
	}
	return false
}
