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

// Package arena implements the host-side shared-memory allocator the core
// consumes (§6): given a requested slot capacity it returns a region of at
// least core.ComputeSize(capacity) bytes, 64-byte aligned and
// zero-initialized.
//
// It is built on cache/mempool's size-classed sync.Pool allocator (the same
// Malloc/Free pair, with its footer-magic double-free guard), adding the
// 64-byte alignment the scheduling region's cache-line-sized header
// requires. Tracking both the pool-owned backing slice and the aligned
// sub-view in a struct follows unsafex/malloc.BitmapAllocator's own style
// of holding arenaStart/blocksStart as explicit fields rather than
// reconstructing them from pointer arithmetic on every call.
package arena

import (
	"unsafe"

	"github.com/cloudwego/gopkg/cache/mempool"
	"github.com/taskarena/corepool/layout"
)

const alignment = 64

// Handle owns one region allocated from the shared pool. Release must be
// called when the region is no longer needed.
type Handle struct {
	raw    []byte // as returned by mempool.Malloc; owns the memory
	region []byte // 64-byte aligned sub-slice of raw, exactly the needed size
}

// Allocate returns a Handle whose Region() is at least
// core.ComputeSize(requestedCapacity) bytes, 64-byte aligned and
// zero-initialized, along with the capacity actually used (rounded up to a
// power of two per §4.1).
func Allocate(requestedCapacity uint32) (*Handle, uint32) {
	capacity, bytes := layout.ComputeSize(requestedCapacity)

	raw := mempool.Malloc(int(bytes) + alignment - 1)
	for i := range raw {
		raw[i] = 0
	}

	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + alignment - 1) &^ uintptr(alignment-1)
	off := aligned - base

	return &Handle{
		raw:    raw,
		region: raw[off : off+bytes],
	}, capacity
}

// Region returns the 64-byte aligned, zero-initialized backing bytes.
func (h *Handle) Region() []byte {
	return h.region
}

// Release returns the backing memory to the pool. The Handle (and any
// Region() it returned) must not be used afterwards.
func (h *Handle) Release() {
	mempool.Free(h.raw)
	h.raw = nil
	h.region = nil
}
