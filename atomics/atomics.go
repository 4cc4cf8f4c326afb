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

// Package atomics provides typed atomic load/store/add/sub/compare-exchange
// over fixed byte offsets inside a shared []byte region.
//
// Every operation here follows the same shape as the SQ/CQ field access in
// internal/iouring: a offset into a mmap'd/shared byte slice is reinterpreted
// as a pointer to a fixed-width word and handed to sync/atomic. Go's
// sync/atomic load/store already compile to the acquire/release instructions
// this package's callers need; the naming below (Load = acquire, Store =
// release, Cas = acquire-release) documents intent rather than adding any
// extra synchronization.
package atomics

import (
	"sync/atomic"
	"unsafe"
)

func ptr32(region []byte, offset uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&region[offset]))
}

func ptr64(region []byte, offset uint32) *uint64 {
	return (*uint64)(unsafe.Pointer(&region[offset]))
}

// LoadU32 performs an acquire load of the 32-bit word at offset.
func LoadU32(region []byte, offset uint32) uint32 {
	return atomic.LoadUint32(ptr32(region, offset))
}

// StoreU32 performs a release store of the 32-bit word at offset.
func StoreU32(region []byte, offset uint32, v uint32) {
	atomic.StoreUint32(ptr32(region, offset), v)
}

// AddU32 performs a relaxed fetch-add and returns the new value.
func AddU32(region []byte, offset uint32, delta uint32) uint32 {
	return atomic.AddUint32(ptr32(region, offset), delta)
}

// SubU32 performs a relaxed fetch-sub and returns the new value.
func SubU32(region []byte, offset uint32, delta uint32) uint32 {
	return atomic.AddUint32(ptr32(region, offset), ^(delta - 1))
}

// CasU32 performs an acquire-release compare-and-swap.
func CasU32(region []byte, offset uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(ptr32(region, offset), old, new)
}

// MaxU32 atomically updates the word at offset to max(current, v) using a
// load-then-CAS loop, returning the value the word was left at.
func MaxU32(region []byte, offset uint32, v uint32) uint32 {
	return MaxUint32(ptr32(region, offset), v)
}

// MinU32 atomically updates the word at offset to min(current, v) using a
// load-then-CAS loop, returning the value the word was left at.
func MinU32(region []byte, offset uint32, v uint32) uint32 {
	return MinUint32(ptr32(region, offset), v)
}

// LoadU64 performs an acquire load of the 64-bit word at offset.
func LoadU64(region []byte, offset uint32) uint64 {
	return atomic.LoadUint64(ptr64(region, offset))
}

// StoreU64 performs a release store of the 64-bit word at offset.
func StoreU64(region []byte, offset uint32, v uint64) {
	atomic.StoreUint64(ptr64(region, offset), v)
}

// AddU64 performs a relaxed fetch-add and returns the new value.
func AddU64(region []byte, offset uint32, delta uint64) uint64 {
	return atomic.AddUint64(ptr64(region, offset), delta)
}

// SubU64 performs a relaxed fetch-sub and returns the new value.
func SubU64(region []byte, offset uint32, delta uint64) uint64 {
	return atomic.AddUint64(ptr64(region, offset), ^(delta - 1))
}

// CasU64 performs an acquire-release compare-and-swap.
func CasU64(region []byte, offset uint32, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(ptr64(region, offset), old, new)
}

// MaxU64 atomically updates the word at offset to max(current, v) using a
// load-then-CAS loop, returning the value the word was left at.
func MaxU64(region []byte, offset uint32, v uint64) uint64 {
	return MaxUint64(ptr64(region, offset), v)
}

// MinU64 atomically updates the word at offset to min(current, v) using a
// load-then-CAS loop, returning the value the word was left at.
func MinU64(region []byte, offset uint32, v uint64) uint64 {
	return MinUint64(ptr64(region, offset), v)
}

// MaxUint32 atomically updates *p to max(*p, v) using a load-then-CAS loop,
// returning the value *p was left at. Unlike the region-offset primitives
// above, this operates on any process-memory uint32, which is what lets
// stats.Stats share the same "atomic max" loop §4.6 calls for instead of
// reimplementing it locally.
func MaxUint32(p *uint32, v uint32) uint32 {
	for {
		cur := atomic.LoadUint32(p)
		if cur >= v {
			return cur
		}
		if atomic.CompareAndSwapUint32(p, cur, v) {
			return v
		}
	}
}

// MinUint32 atomically updates *p to min(*p, v) using a load-then-CAS loop.
func MinUint32(p *uint32, v uint32) uint32 {
	for {
		cur := atomic.LoadUint32(p)
		if cur <= v {
			return cur
		}
		if atomic.CompareAndSwapUint32(p, cur, v) {
			return v
		}
	}
}

// MaxUint64 atomically updates *p to max(*p, v) using a load-then-CAS loop.
func MaxUint64(p *uint64, v uint64) uint64 {
	for {
		cur := atomic.LoadUint64(p)
		if cur >= v {
			return cur
		}
		if atomic.CompareAndSwapUint64(p, cur, v) {
			return v
		}
	}
}

// MinUint64 atomically updates *p to min(*p, v) using a load-then-CAS loop.
func MinUint64(p *uint64, v uint64) uint64 {
	for {
		cur := atomic.LoadUint64(p)
		if cur <= v {
			return cur
		}
		if atomic.CompareAndSwapUint64(p, cur, v) {
			return v
		}
	}
}

// Fence is a memory fence helper exposed for completeness. It is never
// called on the hot path: every load/store above already carries the
// ordering it needs.
func Fence() {
	var x uint32
	atomic.StoreUint32(&x, atomic.LoadUint32(&x))
}
