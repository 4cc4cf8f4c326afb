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

// Package stats holds the cumulative counters of §4.6: relaxed atomic
// counters updated by slotpool/ring/pqueue as an ambient collaborator, the
// same way concurrency/gopool.GoPool tracks its own worker count and ticker
// state with plain atomic fields rather than a metrics library.
//
// Counters live in process memory, not inside the shared region: the
// region's byte layout (and the exact ComputeSize formula of §4.1) is a
// cross-process persistence format, while stats are a purely local
// bookkeeping aid for the process holding the Region handle. Each process
// attaching to the same region gets its own Stats.
package stats

import (
	"sync/atomic"

	"github.com/taskarena/corepool/atomics"
)

// Stats holds the counters described in §4.6.
type Stats struct {
	pushCount     uint64
	popCount      uint64
	pushFailures  uint64
	popFailures   uint64
	casRetries    uint64
	allocCount    uint64
	freeCount     uint64
	peakSize      uint32
	peakAllocated uint32
}

// New returns a zeroed Stats.
func New() *Stats {
	return &Stats{}
}

func (s *Stats) RecordPush()       { atomic.AddUint64(&s.pushCount, 1) }
func (s *Stats) RecordPop()        { atomic.AddUint64(&s.popCount, 1) }
func (s *Stats) RecordPushFailure() { atomic.AddUint64(&s.pushFailures, 1) }
func (s *Stats) RecordPopFailure() { atomic.AddUint64(&s.popFailures, 1) }
func (s *Stats) RecordCasRetry()   { atomic.AddUint64(&s.casRetries, 1) }
func (s *Stats) RecordAlloc()      { atomic.AddUint64(&s.allocCount, 1) }
func (s *Stats) RecordFree()       { atomic.AddUint64(&s.freeCount, 1) }

// RecordPeakSize atomically updates the ring/heap peak-size high-watermark,
// using the same "atomic max" load-then-CAS loop atomics.MaxU32 uses for
// region-offset fields, just applied directly to a process-memory word.
func (s *Stats) RecordPeakSize(size uint32) {
	atomics.MaxUint32(&s.peakSize, size)
}

// RecordPeakAllocated atomically updates the allocated-slot high-watermark.
func (s *Stats) RecordPeakAllocated(n uint32) {
	atomics.MaxUint32(&s.peakAllocated, n)
}

func (s *Stats) PushCount() uint64      { return atomic.LoadUint64(&s.pushCount) }
func (s *Stats) PopCount() uint64       { return atomic.LoadUint64(&s.popCount) }
func (s *Stats) PushFailures() uint64   { return atomic.LoadUint64(&s.pushFailures) }
func (s *Stats) PopFailures() uint64    { return atomic.LoadUint64(&s.popFailures) }
func (s *Stats) CasRetries() uint64     { return atomic.LoadUint64(&s.casRetries) }
func (s *Stats) AllocCount() uint64     { return atomic.LoadUint64(&s.allocCount) }
func (s *Stats) FreeCount() uint64      { return atomic.LoadUint64(&s.freeCount) }
func (s *Stats) PeakSize() uint32       { return atomic.LoadUint32(&s.peakSize) }
func (s *Stats) PeakAllocated() uint32  { return atomic.LoadUint32(&s.peakAllocated) }

// Reset zeroes all counters. Intended for tests.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.pushCount, 0)
	atomic.StoreUint64(&s.popCount, 0)
	atomic.StoreUint64(&s.pushFailures, 0)
	atomic.StoreUint64(&s.popFailures, 0)
	atomic.StoreUint64(&s.casRetries, 0)
	atomic.StoreUint64(&s.allocCount, 0)
	atomic.StoreUint64(&s.freeCount, 0)
	atomic.StoreUint32(&s.peakSize, 0)
	atomic.StoreUint32(&s.peakAllocated, 0)
}
