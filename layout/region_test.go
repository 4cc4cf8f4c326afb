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

package layout

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readU32(region []byte, offset uint32) uint32 {
	return binary.LittleEndian.Uint32(region[offset : offset+4])
}

func TestNextPow2(t *testing.T) {
	cases := []struct{ in, want uint32 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1023, 1024}, {1024, 1024},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NextPow2(c.in), "NextPow2(%d)", c.in)
	}
}

func TestComputeSize(t *testing.T) {
	cap0, _ := ComputeSize(0)
	assert.Equal(t, uint32(1), cap0)

	cap3, _ := ComputeSize(3)
	assert.Equal(t, uint32(4), cap3)

	cap1024, bytes := ComputeSize(1024)
	assert.Equal(t, uint32(1024), cap1024)
	assert.Equal(t, uint64(HeaderSize)+uint64(1024)*(RingEntrySize+SlotSize+HeapEntrySize), bytes)
}

func TestInitAndValidate(t *testing.T) {
	_, bytes := ComputeSize(4)
	region := make([]byte, bytes)

	assert.False(t, Validate(region))

	require.NoError(t, Init(region, 4))
	assert.True(t, Validate(region))
	assert.Equal(t, uint32(4), Capacity(region))
	assert.Equal(t, uint32(3), Mask(region))
	assert.Equal(t, uint32(0), readU32(region, OffAllocatedCount))
	assert.Equal(t, uint32(0), readU32(region, OffFreeListHead))
	assert.Equal(t, uint32(0), readU32(region, OffPQSize))

	// free list chains 0 -> 1 -> 2 -> 3 -> FreeEnd
	capacity := Capacity(region)
	for i := uint32(0); i < capacity-1; i++ {
		next := readU32(region, SlotOffset(capacity, i)+SlotOffNextOrID)
		assert.Equal(t, i+1, next)
	}
	last := readU32(region, SlotOffset(capacity, capacity-1)+SlotOffNextOrID)
	assert.Equal(t, FreeEnd, last)
}

func TestInitAlreadyInitialized(t *testing.T) {
	_, bytes := ComputeSize(4)
	region := make([]byte, bytes)
	require.NoError(t, Init(region, 4))
	err := Init(region, 4)
	assert.Error(t, err)
}

func TestInitRegionTooSmall(t *testing.T) {
	region := make([]byte, 10)
	err := Init(region, 1024)
	assert.Error(t, err)
}

func TestValidateRejectsWrongMagic(t *testing.T) {
	_, bytes := ComputeSize(4)
	region := make([]byte, bytes)
	require.NoError(t, Init(region, 4))
	binary.LittleEndian.PutUint32(region[OffMagic:], 0xDEADBEEF)
	assert.False(t, Validate(region))
}

func TestValidateRejectsCorruptedReservedTrailer(t *testing.T) {
	_, bytes := ComputeSize(4)
	region := make([]byte, bytes)
	require.NoError(t, Init(region, 4))
	require.True(t, Validate(region))

	region[headerReservedOffset] = 0xFF
	assert.False(t, Validate(region))
}

func TestSlotAndEntryOffsets(t *testing.T) {
	capacity := uint32(8)
	slotsBase := SlotsBase(capacity)
	assert.Equal(t, RingBase()+capacity*RingEntrySize, slotsBase)

	pqBase := PQBase(capacity)
	assert.Equal(t, slotsBase+capacity*SlotSize, pqBase)

	for i := uint32(0); i < capacity; i++ {
		assert.Equal(t, slotsBase+i*SlotSize, SlotOffset(capacity, i))
		assert.Equal(t, RingBase()+i*RingEntrySize, RingEntryOffset(i))
		assert.Equal(t, pqBase+i*HeapEntrySize, PQEntryOffset(pqBase, i))
	}
}
