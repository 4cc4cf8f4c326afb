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

// Package core wires layout, atomics, slotpool, ring, pqueue and stats into
// the single external handle described in the scheduling core's host-visible
// interface: a Region owns one shared []byte and hands out the narrow set
// of operations producers and consumers actually call.
//
// This mirrors §9's "shared mutable state... behind a handle that
// non-owning threads may hold concurrently": Region carries no hidden
// module-level state, so a process can construct as many independent
// Regions (over as many independent arenas) as it needs.
package core

import (
	"github.com/taskarena/corepool/errs"
	"github.com/taskarena/corepool/layout"
	"github.com/taskarena/corepool/pqueue"
	"github.com/taskarena/corepool/ring"
	"github.com/taskarena/corepool/slotpool"
	"github.com/taskarena/corepool/stats"
)

// Region is a handle onto one shared-memory scheduling region. It is safe
// for concurrent use by any number of producers and consumers, subject to
// the per-operation concurrency contracts documented in §4 and §5.
type Region struct {
	data  []byte
	stats *stats.Stats
}

// ComputeSize rounds requestedCapacity up to a power of two and returns the
// capacity that will be used and the number of bytes the backing region
// must hold, per §4.1.
func ComputeSize(requestedCapacity uint32) (capacity uint32, bytes uint64) {
	return layout.ComputeSize(requestedCapacity)
}

// New initializes data in place as a fresh scheduling region of
// requestedCapacity (rounded up to a power of two) and returns a handle
// onto it. data must be at least ComputeSize(requestedCapacity) bytes.
func New(data []byte, requestedCapacity uint32) (*Region, error) {
	if err := layout.Init(data, requestedCapacity); err != nil {
		return nil, err
	}
	return &Region{data: data, stats: stats.New()}, nil
}

// Attach wraps an already-initialized region (e.g. one another process
// initialized with New) without touching its contents. It fails if the
// region's magic/version do not validate.
func Attach(data []byte) (*Region, error) {
	if !layout.Validate(data) {
		return nil, errs.ErrNotInitialized
	}
	return &Region{data: data, stats: stats.New()}, nil
}

// Validate reports whether the region's magic and version are intact.
func (r *Region) Validate() bool {
	return layout.Validate(r.data)
}

// Capacity returns the region's slot/ring/heap capacity.
func (r *Region) Capacity() uint32 {
	return layout.Capacity(r.data)
}

// Mask returns capacity-1.
func (r *Region) Mask() uint32 {
	return layout.Mask(r.data)
}

// Stats returns the region's local counters (§4.6).
func (r *Region) Stats() *stats.Stats {
	return r.stats
}

// Bytes exposes the backing region, e.g. for mapping into another process.
func (r *Region) Bytes() []byte {
	return r.data
}

// Allocate claims a slot descriptor. See slotpool.Allocate.
func (r *Region) Allocate() (uint32, error) {
	return slotpool.Allocate(r.data, r.stats)
}

// Free returns a slot to the free list. See slotpool.Free.
func (r *Region) Free(slot uint32) {
	slotpool.Free(r.data, r.stats, slot)
}

// IsAllocated reports whether slot is currently allocated.
func (r *Region) IsAllocated(slot uint32) bool {
	return slotpool.IsAllocated(r.data, slot)
}

// AllocatedCount returns the number of slots currently allocated.
func (r *Region) AllocatedCount() uint32 {
	return slotpool.AllocatedCount(r.data)
}

// AddRef increments slot's refcount.
func (r *Region) AddRef(slot uint32) uint32 {
	return slotpool.AddRef(r.data, slot)
}

// Release decrements slot's refcount, freeing it at zero.
func (r *Region) Release(slot uint32) uint32 {
	return slotpool.Release(r.data, r.stats, slot)
}

func (r *Region) SetTaskID(slot, id uint32)   { slotpool.SetTaskID(r.data, slot, id) }
func (r *Region) GetTaskID(slot uint32) uint32 { return slotpool.GetTaskID(r.data, slot) }

func (r *Region) SetPriority(slot, p uint32)   { slotpool.SetPriority(r.data, slot, p) }
func (r *Region) GetPriority(slot uint32) uint32 { return slotpool.GetPriority(r.data, slot) }

func (r *Region) SetTimestamp(slot uint32, ts uint64) { slotpool.SetTimestamp(r.data, slot, ts) }
func (r *Region) GetTimestamp(slot uint32) uint64     { return slotpool.GetTimestamp(r.data, slot) }

func (r *Region) SetMethodID(slot, id uint32)   { slotpool.SetMethodID(r.data, slot, id) }
func (r *Region) GetMethodID(slot uint32) uint32 { return slotpool.GetMethodID(r.data, slot) }

// RingPush enqueues (slot, priority) onto the FIFO ring. See ring.Push.
func (r *Region) RingPush(slot, priority uint32) error {
	return ring.Push(r.data, r.stats, slot, priority)
}

// RingPop dequeues the oldest packed entry. See ring.Pop.
func (r *Region) RingPop() (uint64, error) {
	return ring.Pop(r.data, r.stats)
}

func (r *Region) RingSize() uint32        { return ring.Size(r.data) }
func (r *Region) RingIsEmpty() bool       { return ring.IsEmpty(r.data) }
func (r *Region) RingIsFull() bool        { return ring.IsFull(r.data) }
func (r *Region) RingClear()              { ring.Clear(r.data) }
func (r *Region) RingContains(s uint32) bool { return ring.Contains(r.data, s) }

// PackEntry / UnpackSlot / UnpackPriority expose the ring's wire format.
func PackEntry(slot, priority uint32) uint64 { return ring.PackEntry(slot, priority) }
func UnpackSlot(entry uint64) uint32         { return ring.UnpackSlot(entry) }
func UnpackPriority(entry uint64) uint32     { return ring.UnpackPriority(entry) }

// PQPush inserts (slot, priority) into the priority queue. See pqueue.Push.
func (r *Region) PQPush(slot, priority uint32) error {
	return pqueue.Push(r.data, r.stats, slot, priority)
}

// PQPop removes and returns the highest-priority slot. See pqueue.Pop.
func (r *Region) PQPop() (uint32, error) {
	return pqueue.Pop(r.data, r.stats)
}

func (r *Region) PQPeek() (uint32, error)         { return pqueue.Peek(r.data) }
func (r *Region) PQPeekPriority() (uint32, error) { return pqueue.PeekPriority(r.data) }
func (r *Region) PQSize() uint32                  { return pqueue.Size(r.data) }
func (r *Region) PQIsEmpty() bool                 { return pqueue.IsEmpty(r.data) }
func (r *Region) PQIsFull() bool                  { return pqueue.IsFull(r.data) }
func (r *Region) PQClear()                        { pqueue.Clear(r.data) }
